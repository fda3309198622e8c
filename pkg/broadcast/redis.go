package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

const DefaultRedisPrefix = "broadcast:"

type redisConfig struct {
	prefix     string
	bufferSize int
	logger     *slog.Logger
}

// RedisOption configures a RedisBroadcaster.
type RedisOption func(*redisConfig)

// WithChannelPrefix sets the Redis channel prefix; the topic is appended to it.
func WithChannelPrefix(prefix string) RedisOption {
	return func(c *redisConfig) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

func WithBufferSize(size int) RedisOption {
	return func(c *redisConfig) { c.bufferSize = size }
}

func WithLogger(l *slog.Logger) RedisOption {
	return func(c *redisConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// RedisBroadcaster publishes through Redis pub/sub and delivers what it
// receives to a local Hub. Every replica sharing the prefix sees every
// publish, including its own.
type RedisBroadcaster[T any] struct {
	client redis.UniversalClient
	prefix string
	local  *Hub[T]
	pubsub *redis.PubSub
	logger *slog.Logger
	done   chan struct{}
}

// NewRedisBroadcaster subscribes to the prefix pattern and starts relaying.
func NewRedisBroadcaster[T any](ctx context.Context, client redis.UniversalClient, opts ...RedisOption) (*RedisBroadcaster[T], error) {
	cfg := redisConfig{prefix: DefaultRedisPrefix, bufferSize: 16, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	pubsub := client.PSubscribe(ctx, cfg.prefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("broadcast: subscribe to %s*: %w", cfg.prefix, err)
	}

	b := &RedisBroadcaster[T]{
		client: client,
		prefix: cfg.prefix,
		local:  NewHub[T](cfg.bufferSize),
		pubsub: pubsub,
		logger: cfg.logger.With(logger.Component("broadcast")),
		done:   make(chan struct{}),
	}
	go b.relay(pubsub.Channel())
	return b, nil
}

func (b *RedisBroadcaster[T]) relay(ch <-chan *redis.Message) {
	defer close(b.done)
	for msg := range ch {
		var data T
		if err := json.Unmarshal([]byte(msg.Payload), &data); err != nil {
			b.logger.Warn("dropping undecodable broadcast",
				slog.String("channel", msg.Channel),
				logger.Error(err),
			)
			continue
		}
		_ = b.local.Publish(context.Background(), strings.TrimPrefix(msg.Channel, b.prefix), data)
	}
}

func (b *RedisBroadcaster[T]) Subscribe(ctx context.Context, topic string) Subscriber[T] {
	return b.local.Subscribe(ctx, topic)
}

func (b *RedisBroadcaster[T]) Publish(ctx context.Context, topic string, data T) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("broadcast: encode message: %w", err)
	}
	if err := b.client.Publish(ctx, b.prefix+topic, payload).Err(); err != nil {
		return fmt.Errorf("broadcast: publish to %s: %w", topic, err)
	}
	return nil
}

func (b *RedisBroadcaster[T]) Subscribers(topic string) int {
	return b.local.Subscribers(topic)
}

// Close stops relaying and ends local subscriptions. The Redis client is
// left open.
func (b *RedisBroadcaster[T]) Close() error {
	err := b.pubsub.Close()
	<-b.done
	return errors.Join(err, b.local.Close())
}
