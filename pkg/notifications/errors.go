package notifications

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrymomot/notifykit/pkg/validator"
)

var (
	ErrValidation           = errors.New("notification validation failed")
	ErrStore                = errors.New("notification store request failed")
	ErrChannelDelivery      = errors.New("channel delivery failed")
	ErrNoSubscription       = errors.New("no active push subscription")
	ErrPermissionDenied     = errors.New("push permission denied")
	ErrTemplateNotFound     = errors.New("notification template not found")
	ErrTemplateRender       = errors.New("notification template rendering failed")
	ErrEncryption           = errors.New("notification encryption failed")
	ErrDecryption           = errors.New("notification decryption failed")
	ErrTerminalState        = errors.New("notification is in a terminal state")
	ErrInvalidTransition    = errors.New("invalid notification status transition")
	ErrUnsupportedChannel   = errors.New("unsupported delivery channel")
	ErrSweepInProgress      = errors.New("sweep already in progress")
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidBatchSize     = errors.New("invalid bulk batch size")
	ErrEmptyBatch           = errors.New("bulk request has no notifications")
	ErrNoRecipientAddress   = errors.New("recipient address not found")
	ErrNotSupported         = errors.New("operation not supported by storage")
)

// ValidationError reports every invalid field of a notification.
// It matches both ErrValidation and validator.Errors.
type ValidationError struct {
	Errors validator.Errors
}

func (e *ValidationError) Error() string {
	return e.Errors.Error()
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Errors}
}

// StoreError wraps a failed call to the notification store.
type StoreError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *StoreError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("store %s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	errs := []error{ErrStore, e.Err}
	if e.StatusCode == http.StatusNotFound {
		errs = append(errs, ErrNotificationNotFound)
	}
	return errs
}

// ChannelDeliveryError describes a failed attempt on one channel.
type ChannelDeliveryError struct {
	Channel        Channel
	NotificationID string
	Retryable      bool
	Err            error
}

func (e *ChannelDeliveryError) Error() string {
	return fmt.Sprintf("deliver %s via %s: %v", e.NotificationID, e.Channel, e.Err)
}

func (e *ChannelDeliveryError) Unwrap() []error {
	return []error{ErrChannelDelivery, e.Err}
}

// IsRetryable reports whether a channel failure may succeed on a later attempt.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var cde *ChannelDeliveryError
	if errors.As(err, &cde) {
		return cde.Retryable
	}
	var se *StoreError
	if errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500 {
		return se.StatusCode == http.StatusRequestTimeout || se.StatusCode == http.StatusTooManyRequests
	}
	switch {
	case errors.Is(err, ErrNoSubscription),
		errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrUnsupportedChannel),
		errors.Is(err, ErrNoRecipientAddress),
		errors.Is(err, ErrValidation):
		return false
	}
	return true
}
