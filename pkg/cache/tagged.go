package cache

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type taggedEntry struct {
	value     []byte
	tags      []string
	expiresAt time.Time
}

func (e taggedEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// TaggedCache is an in-process Cache with LRU eviction, per-entry TTL and
// tag-based invalidation.
type TaggedCache struct {
	mu    sync.Mutex
	lru   *LRU[string, taggedEntry]
	tags  map[string]map[string]struct{}
	clock clockwork.Clock
}

// TaggedOption configures a TaggedCache.
type TaggedOption func(*TaggedCache)

// WithClock replaces the wall clock used for TTL checks.
func WithClock(clock clockwork.Clock) TaggedOption {
	return func(c *TaggedCache) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewTaggedCache creates a cache holding at most capacity entries.
// Panics if capacity is not positive.
func NewTaggedCache(capacity int, opts ...TaggedOption) *TaggedCache {
	c := &TaggedCache{
		tags:  make(map[string]map[string]struct{}),
		clock: clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(c)
	}
	// LRU methods are only called with c.mu held.
	c.lru = NewLRU(capacity, func(key string, e taggedEntry) {
		c.untag(key, e.tags)
	})
	return c
}

func (c *TaggedCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if e.expired(c.clock.Now()) {
		c.lru.Remove(key)
		return nil, false, nil
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (c *TaggedCache) Set(_ context.Context, key string, value []byte, ttl time.Duration, tags ...string) error {
	if key == "" {
		return ErrEmptyKey
	}

	e := taggedEntry{
		value: append([]byte(nil), value...),
		tags:  append([]string(nil), tags...),
	}
	if ttl > 0 {
		e.expiresAt = c.clock.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Drop the previous entry first so its tags are released.
	c.lru.Remove(key)
	c.lru.Add(key, e)
	for _, tag := range e.tags {
		keys, ok := c.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			c.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}
	return nil
}

func (c *TaggedCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		c.lru.Remove(key)
	}
	return nil
}

func (c *TaggedCache) DeleteByTag(_ context.Context, tags ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, tag := range tags {
		keys := c.tags[tag]
		victims := make([]string, 0, len(keys))
		for key := range keys {
			victims = append(victims, key)
		}
		for _, key := range victims {
			c.lru.Remove(key)
		}
		delete(c.tags, tag)
	}
	return nil
}

func (c *TaggedCache) Clear(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Purge()
	c.tags = make(map[string]map[string]struct{})
	return nil
}

// Len reports the number of stored entries, including expired ones not yet collected.
func (c *TaggedCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Must be called with c.mu held.
func (c *TaggedCache) untag(key string, tags []string) {
	for _, tag := range tags {
		keys, ok := c.tags[tag]
		if !ok {
			continue
		}
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.tags, tag)
		}
	}
}
