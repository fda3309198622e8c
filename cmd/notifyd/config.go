package main

import (
	"fmt"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/config"
	"github.com/dmitrymomot/notifykit/pkg/email"
	"github.com/dmitrymomot/notifykit/pkg/fcm"
	"github.com/dmitrymomot/notifykit/pkg/httpserver"
	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/pg"
	"github.com/dmitrymomot/notifykit/pkg/redis"
)

const (
	storeHTTP     = "http"
	storePostgres = "postgres"
	storeMemory   = "memory"

	retryTimer = "timer"
	retryAsynq = "asynq"

	cacheMemory = "memory"
	cacheRedis  = "redis"
)

type Config struct {
	StoreBackend string `env:"NOTIFY_STORE_BACKEND" envDefault:"memory"`
	StoreURL     string `env:"NOTIFY_STORE_URL"`
	StoreToken   string `env:"NOTIFY_STORE_TOKEN"`
	RetryBackend string `env:"NOTIFY_RETRY_BACKEND" envDefault:"timer"`
	CacheBackend string `env:"NOTIFY_CACHE_BACKEND" envDefault:"memory"`
	CacheSize    int    `env:"NOTIFY_CACHE_SIZE" envDefault:"1000"`

	// AppKey is the hex encoded 32 byte key for payload encryption. Empty
	// disables the encryption gate.
	AppKey string `env:"NOTIFY_APP_KEY"`
	// HTTPAddr overrides HTTP_ADDR.
	HTTPAddr string `env:"NOTIFY_HTTP_ADDR"`

	PendingInterval    time.Duration `env:"NOTIFY_PENDING_INTERVAL" envDefault:"5m"`
	ExpirationInterval time.Duration `env:"NOTIFY_EXPIRATION_INTERVAL" envDefault:"60m"`
	PendingGrace       time.Duration `env:"NOTIFY_PENDING_GRACE" envDefault:"1m"`
	RetryConcurrency   int           `env:"NOTIFY_RETRY_CONCURRENCY" envDefault:"10"`

	SMSRate       float64 `env:"NOTIFY_SMS_RATE" envDefault:"5"`
	WebhookURL    string  `env:"NOTIFY_WEBHOOK_URL"`
	WebhookSecret string  `env:"NOTIFY_WEBHOOK_SECRET"`
	TemplatesPath string  `env:"NOTIFY_TEMPLATES_PATH"`
	VAPIDKey      string  `env:"NOTIFY_VAPID_KEY"`
	// EmailEnabled sends email directly through the email package instead
	// of the store.
	EmailEnabled bool `env:"NOTIFY_EMAIL_ENABLED" envDefault:"false"`

	Logger logger.Config
	HTTP   httpserver.Config
	PG     pg.Config
	Redis  redis.Config
	Email  email.Config
	FCM    fcm.Config
}

func loadConfig(opts ...config.Option) (Config, error) {
	var cfg Config
	if err := config.NewLoader(opts...).Load(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", config.ErrParsingConfig, err)
	}
	if cfg.HTTPAddr != "" {
		cfg.HTTP.Addr = cfg.HTTPAddr
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.StoreBackend {
	case storeHTTP:
		if c.StoreURL == "" {
			return fmt.Errorf("NOTIFY_STORE_URL is required for the %s store", storeHTTP)
		}
	case storePostgres:
		if c.PG.ConnectionString == "" {
			return fmt.Errorf("PG_CONN_URL is required for the %s store", storePostgres)
		}
	case storeMemory:
	default:
		return fmt.Errorf("unknown NOTIFY_STORE_BACKEND %q", c.StoreBackend)
	}
	if c.RetryBackend != retryTimer && c.RetryBackend != retryAsynq {
		return fmt.Errorf("unknown NOTIFY_RETRY_BACKEND %q", c.RetryBackend)
	}
	if c.CacheBackend != cacheMemory && c.CacheBackend != cacheRedis {
		return fmt.Errorf("unknown NOTIFY_CACHE_BACKEND %q", c.CacheBackend)
	}
	return nil
}

// needsRedis reports whether any backend talks to Redis. The in-app stream
// fans out over Redis whenever it is available.
func (c Config) needsRedis() bool {
	return c.RetryBackend == retryAsynq || c.CacheBackend == cacheRedis
}
