package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/config"
)

func load(t *testing.T, vars map[string]string) (Config, error) {
	t.Helper()
	return loadConfig(config.WithDotEnv(), config.WithEnvironment(vars))
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, map[string]string{})
	require.NoError(t, err)

	assert.Equal(t, storeMemory, cfg.StoreBackend)
	assert.Equal(t, retryTimer, cfg.RetryBackend)
	assert.Equal(t, cacheMemory, cfg.CacheBackend)
	assert.Equal(t, 1000, cfg.CacheSize)
	assert.Equal(t, 5*time.Minute, cfg.PendingInterval)
	assert.Equal(t, time.Hour, cfg.ExpirationInterval)
	assert.Equal(t, time.Minute, cfg.PendingGrace)
	assert.InDelta(t, 5.0, cfg.SMSRate, 0.001)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "notifyd", cfg.Logger.Service)
	assert.False(t, cfg.needsRedis())
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Parallel()

	cfg, err := load(t, map[string]string{
		"NOTIFY_STORE_BACKEND":    "postgres",
		"PG_CONN_URL":             "postgres://localhost/notify",
		"NOTIFY_RETRY_BACKEND":    "asynq",
		"NOTIFY_HTTP_ADDR":        ":9090",
		"NOTIFY_PENDING_INTERVAL": "30s",
		"REDIS_URL":               "redis://cache:6379/2",
	})
	require.NoError(t, err)

	assert.Equal(t, storePostgres, cfg.StoreBackend)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, 30*time.Second, cfg.PendingInterval)
	assert.Equal(t, "redis://cache:6379/2", cfg.Redis.URL)
	assert.True(t, cfg.needsRedis())
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		vars map[string]string
	}{
		{name: "http store without url", vars: map[string]string{"NOTIFY_STORE_BACKEND": "http"}},
		{name: "postgres store without dsn", vars: map[string]string{"NOTIFY_STORE_BACKEND": "postgres"}},
		{name: "unknown store", vars: map[string]string{"NOTIFY_STORE_BACKEND": "sqlite"}},
		{name: "unknown retry backend", vars: map[string]string{"NOTIFY_RETRY_BACKEND": "cron"}},
		{name: "unknown cache backend", vars: map[string]string{"NOTIFY_CACHE_BACKEND": "memcached"}},
		{name: "malformed duration", vars: map[string]string{"NOTIFY_PENDING_INTERVAL": "often"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := load(t, tt.vars)
			assert.ErrorIs(t, err, config.ErrParsingConfig)
		})
	}
}
