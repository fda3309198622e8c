package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/dmitrymomot/notifykit/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithEnvironment(t *testing.T) {
	t.Run("development uses text and debug", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(
			logger.WithEnvironment("development", "svc"),
			logger.WithOutput(buf),
		)
		log.Debug("msg")
		output := buf.String()
		assert.Contains(t, output, "DEBUG")
		assert.Contains(t, output, "service=svc")
		assert.Contains(t, output, "env=development")
	})

	t.Run("production uses json", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log := logger.New(
			logger.WithEnvironment("prod", "svc"),
			logger.WithOutput(buf),
		)
		log.Debug("hidden")
		log.Info("msg")
		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "svc", entry["service"])
		assert.Equal(t, "prod", entry["env"])
	})
}

func TestNewFromConfig(t *testing.T) {
	t.Run("explicit format and level override environment", func(t *testing.T) {
		buf := &bytes.Buffer{}
		log, err := logger.NewFromConfig(logger.Config{
			Env:     "development",
			Service: "notifyd",
			Format:  "json",
			Level:   "warn",
		}, logger.WithOutput(buf))
		require.NoError(t, err)

		log.Info("skipped")
		log.Warn("kept")
		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "kept", entry["msg"])
		assert.Equal(t, "notifyd", entry["service"])
	})

	t.Run("invalid level", func(t *testing.T) {
		_, err := logger.NewFromConfig(logger.Config{Level: "loud"})
		require.Error(t, err)
	})

	t.Run("invalid format", func(t *testing.T) {
		_, err := logger.NewFromConfig(logger.Config{Format: "xml"})
		require.Error(t, err)
	})

	t.Run("rotating file output", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "notifyd.log")
		log, err := logger.NewFromConfig(logger.Config{
			Env:       "production",
			File:      path,
			MaxSizeMB: 1,
		})
		require.NoError(t, err)
		log.Info("to file")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "to file")
	})
}

func TestNotificationExtractor(t *testing.T) {
	buf := &bytes.Buffer{}
	log := logger.New(
		logger.WithOutput(buf),
		logger.WithContextExtractors(logger.NotificationExtractor),
	)

	ctx := logger.ContextWithNotificationID(context.Background(), "notif_42")
	log.InfoContext(ctx, "delivering")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "notif_42", entry["notification_id"])

	buf.Reset()
	log.InfoContext(context.Background(), "plain")
	entry = map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	_, ok := entry["notification_id"]
	assert.False(t, ok)
}
