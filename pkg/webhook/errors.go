package webhook

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidURL       = errors.New("webhook: invalid url")
	ErrInvalidPayload   = errors.New("webhook: invalid payload")
	ErrDeliveryFailed   = errors.New("webhook: delivery failed")
	ErrPermanentFailure = errors.New("webhook: permanent failure")
	ErrCircuitOpen      = errors.New("webhook: circuit breaker is open")
	ErrInvalidSignature = errors.New("webhook: invalid signature")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Code int
	// Body is the start of the response body, flattened to one line.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("endpoint returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("endpoint returned %d: %s", e.Code, e.Body)
}

// Permanent reports whether retrying the same request cannot succeed.
func (e *StatusError) Permanent() bool {
	switch e.Code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	}
	return e.Code >= 400 && e.Code < 500
}
