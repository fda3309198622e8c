// Package cache provides the read-cache building blocks used by the
// notification engine.
//
// LRU is a generic, thread-safe LRU with an eviction callback. TaggedCache
// layers per-entry TTLs and tag-based invalidation on top of it for a single
// process, and RedisCache offers the same Cache contract backed by Redis so
// several engine instances can share one cache.
//
// Values are opaque byte slices; callers encode and decode them. Every entry
// may carry tags, and DeleteByTag drops all entries that share a tag:
//
//	c := cache.NewTaggedCache(1000)
//	_ = c.Set(ctx, "notification_n1", payload, 5*time.Minute, "notifications", "user:u1")
//	_ = c.DeleteByTag(ctx, "user:u1")
package cache
