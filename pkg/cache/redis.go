package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "notifykit:cache:"

// RedisCache implements Cache on top of Redis. Tags are kept as Redis sets
// holding the member keys.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
}

// RedisOption configures a RedisCache.
type RedisOption func(*RedisCache)

// WithKeyPrefix namespaces every key written by the cache.
func WithKeyPrefix(prefix string) RedisOption {
	return func(c *RedisCache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

func NewRedisCache(client redis.UniversalClient, opts ...RedisOption) *RedisCache {
	c := &RedisCache{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *RedisCache) key(k string) string    { return c.prefix + "k:" + k }
func (c *RedisCache) tagKey(t string) string { return c.prefix + "t:" + t }

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Join(ErrRedisCache, err)
	}
	return b, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags ...string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if ttl < 0 {
		ttl = 0
	}

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, c.key(key), value, ttl)
		for _, tag := range tags {
			pipe.SAdd(ctx, c.tagKey(tag), key)
		}
		return nil
	})
	if err != nil {
		return errors.Join(ErrRedisCache, err)
	}
	return nil
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		return errors.Join(ErrRedisCache, err)
	}
	return nil
}

func (c *RedisCache) DeleteByTag(ctx context.Context, tags ...string) error {
	for _, tag := range tags {
		members, err := c.client.SMembers(ctx, c.tagKey(tag)).Result()
		if err != nil {
			return errors.Join(ErrRedisCache, fmt.Errorf("tag %s: %w", tag, err))
		}
		victims := make([]string, 0, len(members)+1)
		for _, m := range members {
			victims = append(victims, c.key(m))
		}
		victims = append(victims, c.tagKey(tag))
		if err := c.client.Del(ctx, victims...).Err(); err != nil {
			return errors.Join(ErrRedisCache, err)
		}
	}
	return nil
}

// Clear removes every key under the cache prefix.
func (c *RedisCache) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", 200).Result()
		if err != nil {
			return errors.Join(ErrRedisCache, err)
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return errors.Join(ErrRedisCache, err)
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
