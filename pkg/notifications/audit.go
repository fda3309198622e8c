package notifications

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

const (
	AuditCreate   = "create_notification"
	AuditMarkRead = "mark_read"
	AuditDismiss  = "dismiss"
	AuditDelete   = "delete_notification"
)

// AuditEvent records a user-visible change to a notification.
type AuditEvent struct {
	ID             string         `json:"id"`
	Action         string         `json:"action"`
	NotificationID string         `json:"notificationId,omitempty"`
	UserID         string         `json:"userId,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	At             time.Time      `json:"at"`
}

// AuditSink receives audit events. Record must not block the caller for long;
// failures are the sink's concern.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent)
}

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc func(ctx context.Context, event AuditEvent)

func (f AuditSinkFunc) Record(ctx context.Context, event AuditEvent) { f(ctx, event) }

// LogAuditSink writes audit events as structured log records.
type LogAuditSink struct {
	logger *slog.Logger
}

func NewLogAuditSink(l *slog.Logger) *LogAuditSink {
	if l == nil {
		l = slog.Default()
	}
	return &LogAuditSink{logger: l.With(logger.Component("audit"))}
}

func (s *LogAuditSink) Record(ctx context.Context, e AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_id", e.ID),
		logger.Event(e.Action),
		slog.Time("at", e.At),
	}
	if e.NotificationID != "" {
		attrs = append(attrs, logger.NotificationID(e.NotificationID))
	}
	if e.UserID != "" {
		attrs = append(attrs, logger.UserID(e.UserID))
	}
	if len(e.Metadata) > 0 {
		attrs = append(attrs, slog.Any("metadata", e.Metadata))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}

func (s *Service) recordAudit(ctx context.Context, action, notificationID, userID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditEvent{
		ID:             uuid.NewString(),
		Action:         action,
		NotificationID: notificationID,
		UserID:         userID,
		Metadata:       meta,
		At:             s.clock.Now(),
	})
}
