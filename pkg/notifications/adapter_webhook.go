package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/webhook"
)

// WebhookEvent is the JSON body posted to webhook endpoints.
type WebhookEvent struct {
	Event        string       `json:"event"`
	Notification Notification `json:"notification"`
	SentAt       time.Time    `json:"sentAt"`
}

// WebhookAdapter posts notifications to an HTTP endpoint with an HMAC
// signature. The sender's own retries are disabled; failed attempts are
// rescheduled by the retry scheduler instead.
type WebhookAdapter struct {
	sender   *webhook.Sender
	url      string
	secret   string
	timeout  time.Duration
	breaker  *webhook.CircuitBreaker
	resolver AddressResolver
}

// WebhookOption configures a WebhookAdapter.
type WebhookOption func(*WebhookAdapter)

// WithWebhookSecret signs every request with secret.
func WithWebhookSecret(secret string) WebhookOption {
	return func(a *WebhookAdapter) { a.secret = secret }
}

func WithWebhookTimeout(d time.Duration) WebhookOption {
	return func(a *WebhookAdapter) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// WithWebhookSender replaces the underlying sender.
func WithWebhookSender(s *webhook.Sender) WebhookOption {
	return func(a *WebhookAdapter) {
		if s != nil {
			a.sender = s
		}
	}
}

// WithWebhookCircuitBreaker replaces the default circuit breaker.
func WithWebhookCircuitBreaker(cb *webhook.CircuitBreaker) WebhookOption {
	return func(a *WebhookAdapter) { a.breaker = cb }
}

// WithWebhookResolver resolves a per-recipient endpoint, falling back to the default URL.
func WithWebhookResolver(r AddressResolver) WebhookOption {
	return func(a *WebhookAdapter) { a.resolver = r }
}

func NewWebhookAdapter(url string, opts ...WebhookOption) *WebhookAdapter {
	a := &WebhookAdapter{
		sender:  webhook.NewSender(),
		url:     url,
		timeout: 10 * time.Second,
		breaker: webhook.NewCircuitBreaker(5, 2, time.Minute),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *WebhookAdapter) Channel() Channel { return ChannelWebhook }

func (a *WebhookAdapter) Deliver(ctx context.Context, n Notification) (Outcome, error) {
	url, err := a.endpoint(ctx, n)
	if err != nil {
		return "", deliveryError(n, ChannelWebhook, err)
	}

	opts := []webhook.SendOption{
		webhook.WithNoRetry(),
		webhook.WithTimeout(a.timeout),
		webhook.WithHeader("X-Notification-ID", n.ID),
	}
	if a.secret != "" {
		opts = append(opts, webhook.WithSignature(a.secret))
	}
	if a.breaker != nil {
		opts = append(opts, webhook.WithCircuitBreaker(a.breaker))
	}

	event := WebhookEvent{
		Event:        "notification." + string(n.Type),
		Notification: Sanitize(n),
		SentAt:       time.Now().UTC(),
	}
	if err := a.sender.Send(ctx, url, event, opts...); err != nil {
		return "", &ChannelDeliveryError{
			Channel:        ChannelWebhook,
			NotificationID: n.ID,
			Retryable: !errors.Is(err, webhook.ErrPermanentFailure) &&
				!errors.Is(err, webhook.ErrInvalidURL) &&
				!errors.Is(err, webhook.ErrInvalidPayload),
			Err: err,
		}
	}
	return OutcomeConfirmed, nil
}

func (a *WebhookAdapter) endpoint(ctx context.Context, n Notification) (string, error) {
	if a.resolver != nil {
		u, err := a.resolver.ResolveAddress(ctx, n.RecipientID, ChannelWebhook)
		if err != nil {
			return "", err
		}
		if u != "" {
			return u, nil
		}
	}
	if a.url == "" {
		return "", fmt.Errorf("%w: no webhook endpoint for %s", ErrNoRecipientAddress, n.RecipientID)
	}
	return a.url, nil
}
