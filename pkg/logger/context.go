package logger

import (
	"context"
	"log/slog"
)

// ContextExtractor pulls an attribute out of a context, if present.
type ContextExtractor func(ctx context.Context) (slog.Attr, bool)

// contextHandler appends extracted attributes to every record.
type contextHandler struct {
	slog.Handler
	extractors []ContextExtractor
}

// NewContextHandler wraps next so each record also carries the attributes
// the extractors find in the logging context. Nil extractors are skipped.
func NewContextHandler(next slog.Handler, extractors ...ContextExtractor) slog.Handler {
	var kept []ContextExtractor
	for _, ex := range extractors {
		if ex != nil {
			kept = append(kept, ex)
		}
	}
	if len(kept) == 0 {
		return next
	}
	return &contextHandler{Handler: next, extractors: kept}
}

func (h *contextHandler) Handle(ctx context.Context, rec slog.Record) error {
	for _, ex := range h.extractors {
		if attr, ok := ex(ctx); ok {
			rec.AddAttrs(attr)
		}
	}
	return h.Handler.Handle(ctx, rec)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithAttrs(attrs), extractors: h.extractors}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{Handler: h.Handler.WithGroup(name), extractors: h.extractors}
}

type (
	notificationKey struct{}
	userKey         struct{}
)

func ContextWithNotificationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, notificationKey{}, id)
}

func ContextWithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userKey{}, id)
}

// NotificationExtractor reads the id stored by ContextWithNotificationID.
func NotificationExtractor(ctx context.Context) (slog.Attr, bool) {
	id, ok := ctx.Value(notificationKey{}).(string)
	if !ok || id == "" {
		return slog.Attr{}, false
	}
	return NotificationID(id), true
}

// UserExtractor reads the id stored by ContextWithUserID.
func UserExtractor(ctx context.Context) (slog.Attr, bool) {
	id, ok := ctx.Value(userKey{}).(string)
	if !ok || id == "" {
		return slog.Attr{}, false
	}
	return UserID(id), true
}
