package notifications

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// DefaultSMSRate is the default number of SMS sends per second.
const DefaultSMSRate = 5

// RemoteAdapter delivers a channel through the store's send endpoint.
// A 2xx response confirms delivery; anything else is a retryable failure.
type RemoteAdapter struct {
	channel Channel
	sender  RemoteSender
	limiter *rate.Limiter
}

// RemoteOption configures a RemoteAdapter.
type RemoteOption func(*RemoteAdapter)

// WithRateLimit caps sends to rps per second with the given burst.
func WithRateLimit(rps float64, burst int) RemoteOption {
	return func(a *RemoteAdapter) {
		if rps > 0 {
			a.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
		}
	}
}

func NewRemoteAdapter(ch Channel, sender RemoteSender, opts ...RemoteOption) *RemoteAdapter {
	a := &RemoteAdapter{channel: ch, sender: sender}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewSMSAdapter returns a remote SMS adapter limited to rps sends per second.
func NewSMSAdapter(sender RemoteSender, rps float64) *RemoteAdapter {
	if rps <= 0 {
		rps = DefaultSMSRate
	}
	return NewRemoteAdapter(ChannelSMS, sender, WithRateLimit(rps, int(rps)))
}

func (a *RemoteAdapter) Channel() Channel { return a.channel }

func (a *RemoteAdapter) Deliver(ctx context.Context, n Notification) (Outcome, error) {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return "", deliveryError(n, a.channel, fmt.Errorf("rate limit: %w", err))
		}
	}

	payload := map[string]any{
		"recipientId": n.RecipientID,
		"title":       n.Title,
		"body":        n.Body,
		"priority":    n.Priority,
	}
	if err := a.sender.SendChannel(ctx, n.ID, a.channel, payload); err != nil {
		return "", deliveryError(n, a.channel, err)
	}
	return OutcomeConfirmed, nil
}
