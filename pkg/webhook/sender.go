package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"resty.dev/v3"
)

const DefaultUserAgent = "notifykit-webhook/1.0"

// maxErrorBody bounds how much of a failed response ends up in errors.
const maxErrorBody = 256

// Sender delivers webhooks. It is safe for concurrent use.
type Sender struct {
	client    *resty.Client
	clock     clockwork.Clock
	userAgent string
}

type SenderOption func(*Sender)

// WithHTTPClient sends through hc instead of a pooled default client.
func WithHTTPClient(hc *http.Client) SenderOption {
	return func(s *Sender) {
		if hc != nil {
			s.client = resty.NewWithClient(hc)
		}
	}
}

// WithClock replaces the clock used for signing and backoff waits.
func WithClock(c clockwork.Clock) SenderOption {
	return func(s *Sender) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithUserAgent(ua string) SenderOption {
	return func(s *Sender) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

func NewSender(opts ...SenderOption) *Sender {
	s := &Sender{clock: clockwork.NewRealClock(), userAgent: DefaultUserAgent}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = resty.NewWithClient(&http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		})
	}
	return s
}

// Send POSTs data as JSON to endpoint, retrying transient failures.
func (s *Sender) Send(ctx context.Context, endpoint string, data any, opts ...SendOption) error {
	if err := validateURL(endpoint); err != nil {
		return err
	}
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	cfg := defaultSendConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.breaker != nil {
		if err := cfg.breaker.Allow(); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.maxRetries+1; attempt++ {
		if attempt > 1 {
			if err := s.wait(ctx, cfg.backoff.NextInterval(attempt-1)); err != nil {
				return fmt.Errorf("%w: %w (last: %w)", ErrDeliveryFailed, err, lastErr)
			}
		}

		status, elapsed, err := s.post(ctx, endpoint, body, &cfg)
		if cfg.onAttempt != nil {
			cfg.onAttempt(Attempt{Number: attempt, StatusCode: status, Duration: elapsed, Err: err})
		}
		if cfg.breaker != nil {
			if err == nil {
				cfg.breaker.Success()
			} else {
				cfg.breaker.Failure()
			}
		}
		if err == nil {
			return nil
		}

		var se *StatusError
		if errors.As(err, &se) && se.Permanent() {
			return fmt.Errorf("%w: %w", ErrPermanentFailure, err)
		}
		lastErr = err
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrDeliveryFailed, cfg.maxRetries+1, lastErr)
}

func (s *Sender) post(ctx context.Context, endpoint string, body []byte, cfg *sendConfig) (int, time.Duration, error) {
	reqCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	req := s.client.R().
		SetContext(reqCtx).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", s.userAgent).
		SetBody(body)
	for k := range cfg.headers {
		req.SetHeader(k, cfg.headers.Get(k))
	}
	if cfg.secret != "" {
		for k, v := range SignatureHeaders(cfg.secret, body, s.clock.Now()) {
			req.SetHeader(k, v[0])
		}
	}

	start := s.clock.Now()
	resp, err := req.Post(endpoint)
	elapsed := s.clock.Since(start)
	if err != nil {
		return 0, elapsed, fmt.Errorf("post %s: %w", redact(endpoint), err)
	}
	if code := resp.StatusCode(); code < 200 || code > 299 {
		return code, elapsed, &StatusError{Code: code, Body: snippet(resp.String())}
	}
	return resp.StatusCode(), elapsed, nil
}

func (s *Sender) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := s.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Chan():
		return nil
	}
}

func (s *Sender) Close() error {
	return s.client.Close()
}

func validateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: empty", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q not allowed", ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	return nil
}

// redact drops credentials and the query so tokens in endpoints don't reach logs.
func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

func snippet(body string) string {
	body = strings.Join(strings.Fields(body), " ")
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	return body
}
