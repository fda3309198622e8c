package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

var (
	ErrEmptyURL = errors.New("redis: empty url, set REDIS_URL")
	ErrNotReady = errors.New("redis: server not ready")
)

// Connect pings the server until it answers, cfg.ConnectAttempts runs out
// or cfg.ConnectTimeout passes.
func Connect(ctx context.Context, cfg Config, log *slog.Logger) (*redis.Client, error) {
	if cfg.URL == "" {
		return nil, ErrEmptyURL
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}

	client := redis.NewClient(opts)
	attempts := max(cfg.ConnectAttempts, 1)
	for attempt := 1; ; attempt++ {
		err = client.Ping(ctx).Err()
		if err == nil {
			return client, nil
		}
		if attempt >= attempts {
			break
		}
		log.WarnContext(ctx, "redis not ready, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, fmt.Errorf("%w: %w", ErrNotReady, ctx.Err())
		case <-time.After(time.Duration(attempt) * cfg.ConnectBackoff):
		}
	}
	_ = client.Close()
	return nil, fmt.Errorf("%w after %d attempts: %w", ErrNotReady, attempts, err)
}

// AsynqOpt converts the configured URL into asynq connection options.
func AsynqOpt(cfg Config) (asynq.RedisConnOpt, error) {
	if cfg.URL == "" {
		return nil, ErrEmptyURL
	}
	opt, err := asynq.ParseRedisURI(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url for asynq: %w", err)
	}
	return opt, nil
}

// Check returns a readiness probe for client.
func Check(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: ping: %w", err)
		}
		return nil
	}
}
