package webhook

import (
	"net/http"
	"time"
)

// Attempt describes one HTTP request made by Send.
type Attempt struct {
	Number     int
	StatusCode int
	Duration   time.Duration
	Err        error
}

type sendConfig struct {
	timeout    time.Duration
	headers    http.Header
	maxRetries int
	backoff    Backoff
	secret     string
	breaker    *CircuitBreaker
	onAttempt  func(Attempt)
}

func defaultSendConfig() sendConfig {
	return sendConfig{
		timeout:    10 * time.Second,
		headers:    make(http.Header),
		maxRetries: 3,
		backoff:    defaultBackoff(),
	}
}

// SendOption configures one Send call.
type SendOption func(*sendConfig)

// WithTimeout bounds each request, not the whole Send.
func WithTimeout(d time.Duration) SendOption {
	return func(c *sendConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithHeader(key, value string) SendOption {
	return func(c *sendConfig) { c.headers.Set(key, value) }
}

// WithMaxRetries sets the number of retries after the first request.
func WithMaxRetries(n int) SendOption {
	return func(c *sendConfig) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithNoRetry makes Send issue exactly one request.
func WithNoRetry() SendOption {
	return WithMaxRetries(0)
}

func WithBackoff(b Backoff) SendOption {
	return func(c *sendConfig) {
		if b != nil {
			c.backoff = b
		}
	}
}

// WithSignature signs the body with secret.
func WithSignature(secret string) SendOption {
	return func(c *sendConfig) { c.secret = secret }
}

// WithCircuitBreaker consults and updates b for this send.
func WithCircuitBreaker(b *CircuitBreaker) SendOption {
	return func(c *sendConfig) { c.breaker = b }
}

// WithOnAttempt is called after every request.
func WithOnAttempt(fn func(Attempt)) SendOption {
	return func(c *sendConfig) { c.onAttempt = fn }
}
