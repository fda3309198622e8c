package cache

import (
	"context"
	"time"
)

// Cache stores opaque values with a TTL and optional tags.
// Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the value and true on a hit. Expired entries are misses.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key. A non-positive ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error
	Delete(ctx context.Context, keys ...string) error
	// DeleteByTag removes every entry carrying any of the tags.
	DeleteByTag(ctx context.Context, tags ...string) error
	Clear(ctx context.Context) error
}
