package logger_test

import (
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

func TestAttrs(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	tests := []struct {
		name string
		attr slog.Attr
		key  string
		want any
	}{
		{"error", logger.Error(boom), logger.KeyError, boom},
		{"notification id", logger.NotificationID("notif_1"), logger.KeyNotificationID, "notif_1"},
		{"user id", logger.UserID("user_9"), logger.KeyUserID, "user_9"},
		{"channel", logger.Channel("email"), logger.KeyChannel, "email"},
		{"status", logger.Status("sent"), logger.KeyStatus, "sent"},
		{"retry count", logger.RetryCount(2), logger.KeyRetryCount, int64(2)},
		{"duration", logger.Duration(1500 * time.Millisecond), logger.KeyDuration, 1500 * time.Millisecond},
		{"component", logger.Component("dispatcher"), logger.KeyComponent, "dispatcher"},
		{"event", logger.Event("confirm"), logger.KeyEvent, "confirm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.key, tt.attr.Key)
			assert.Equal(t, tt.want, tt.attr.Value.Any())
		})
	}
}

func TestAttrs_EmptyValuesAreDropped(t *testing.T) {
	t.Parallel()

	for _, a := range []slog.Attr{logger.Error(nil), logger.NotificationID(""), logger.UserID("")} {
		assert.True(t, a.Equal(slog.Attr{}))
	}
}

func TestTransition(t *testing.T) {
	t.Parallel()

	attr := logger.Transition("pending", "sent", "dispatch")
	require.Equal(t, logger.KeyTransition, attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())

	got := map[string]string{}
	for _, a := range attr.Value.Group() {
		got[a.Key] = a.Value.String()
	}
	assert.Equal(t, map[string]string{"from": "pending", "to": "sent", "event": "dispatch"}, got)
}
