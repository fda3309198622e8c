package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/validator"
)

// HTTPError is a request-level failure with a fixed status and code.
type HTTPError struct {
	Status int
	Code   string
	Err    error
}

func (e *HTTPError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return e.Code + ": " + e.Err.Error()
}

func (e *HTTPError) Unwrap() error { return e.Err }

func badRequest(format string, args ...any) error {
	return &HTTPError{Status: http.StatusBadRequest, Code: "bad_request", Err: fmt.Errorf(format, args...)}
}

var (
	ErrNotFound             = &HTTPError{Status: http.StatusNotFound, Code: "not_found"}
	ErrStreamingUnsupported = &HTTPError{Status: http.StatusNotImplemented, Code: "streaming_unsupported"}
)

type errorInfo struct {
	status  int
	code    string
	message string
	details map[string][]string
	level   slog.Level
}

// classify maps engine errors onto HTTP statuses. Server-side failures keep
// a generic message so store internals do not leak to clients.
func classify(err error) errorInfo {
	info := errorInfo{
		status:  http.StatusInternalServerError,
		code:    "internal_error",
		message: "internal error",
		level:   slog.LevelError,
	}

	var (
		httpErr  *HTTPError
		storeErr *notifications.StoreError
	)
	switch {
	case errors.As(err, &httpErr):
		info.status, info.code, info.message = httpErr.Status, httpErr.Code, httpErr.Error()
	case errors.Is(err, notifications.ErrValidation):
		info.status, info.code, info.message = http.StatusUnprocessableEntity, "validation_failed", "validation failed"
		if errs := validator.As(err); len(errs) > 0 {
			info.details = errs.ByField()
		} else {
			info.message = err.Error()
		}
	case errors.Is(err, notifications.ErrNotificationNotFound):
		info.status, info.code, info.message = http.StatusNotFound, "not_found", "notification not found"
	case errors.Is(err, notifications.ErrInvalidTransition), errors.Is(err, notifications.ErrTerminalState):
		info.status, info.code, info.message = http.StatusConflict, "invalid_transition", err.Error()
	case errors.Is(err, notifications.ErrTemplateNotFound):
		info.status, info.code, info.message = http.StatusUnprocessableEntity, "template_not_found", err.Error()
	case errors.Is(err, notifications.ErrEmptyBatch), errors.Is(err, notifications.ErrInvalidBatchSize):
		info.status, info.code, info.message = http.StatusBadRequest, "invalid_batch", err.Error()
	case errors.Is(err, notifications.ErrPermissionDenied), errors.Is(err, notifications.ErrNoSubscription):
		info.status, info.code, info.message = http.StatusConflict, "push_unavailable", err.Error()
	case errors.Is(err, notifications.ErrUnsupportedChannel), errors.Is(err, notifications.ErrNotSupported):
		info.status, info.code, info.message = http.StatusNotImplemented, "not_supported", err.Error()
	case errors.As(err, &storeErr):
		info.status, info.code, info.message = http.StatusBadGateway, "store_unavailable", "notification store request failed"
	}

	if info.status < http.StatusInternalServerError {
		info.level = slog.LevelWarn
	}
	return info
}
