package logger

import (
	"log/slog"
	"time"
)

// Attribute keys shared by every component, so log queries can rely on them.
const (
	KeyError          = "error"
	KeyNotificationID = "notification_id"
	KeyUserID         = "user_id"
	KeyChannel        = "channel"
	KeyStatus         = "status"
	KeyTransition     = "transition"
	KeyRetryCount     = "retry_count"
	KeyDuration       = "duration"
	KeyComponent      = "component"
	KeyEvent          = "event"
)

// Error returns an empty Attr for a nil err, which slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any(KeyError, err)
}

// NotificationID returns an empty Attr for an empty id.
func NotificationID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String(KeyNotificationID, id)
}

// UserID returns an empty Attr for an empty id.
func UserID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String(KeyUserID, id)
}

func Channel(name string) slog.Attr { return slog.String(KeyChannel, name) }

func Status(name string) slog.Attr { return slog.String(KeyStatus, name) }

// Transition groups a lifecycle move as transition.from, transition.to and
// transition.event.
func Transition(from, to, event string) slog.Attr {
	return slog.Group(KeyTransition,
		slog.String("from", from),
		slog.String("to", to),
		slog.String("event", event),
	)
}

func RetryCount(count int) slog.Attr { return slog.Int(KeyRetryCount, count) }

func Duration(d time.Duration) slog.Attr { return slog.Duration(KeyDuration, d) }

func Component(name string) slog.Attr { return slog.String(KeyComponent, name) }

func Event(name string) slog.Attr { return slog.String(KeyEvent, name) }
