package notifications

import (
	"context"
	"log/slog"

	"github.com/dmitrymomot/notifykit/pkg/broadcast"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// InAppAdapter delivers in-app notifications. Persistence already makes the
// notification visible, so delivery always succeeds with OutcomeHandedOff.
// Live subscribers of the recipient additionally get the notification
// published on the recipient's topic.
type InAppAdapter struct {
	hub    broadcast.Broadcaster[Notification]
	logger *slog.Logger
}

// InAppOption configures an InAppAdapter.
type InAppOption func(*InAppAdapter)

func WithInAppLogger(l *slog.Logger) InAppOption {
	return func(a *InAppAdapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithBroadcaster replaces the in-process hub, e.g. with a
// broadcast.RedisBroadcaster shared by several replicas.
func WithBroadcaster(b broadcast.Broadcaster[Notification]) InAppOption {
	return func(a *InAppAdapter) {
		if b != nil {
			a.hub = b
		}
	}
}

// NewInAppAdapter creates an adapter whose subscribers buffer up to
// bufferSize notifications.
func NewInAppAdapter(bufferSize int, opts ...InAppOption) *InAppAdapter {
	a := &InAppAdapter{logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	if a.hub == nil {
		a.hub = broadcast.NewHub[Notification](bufferSize)
	}
	return a
}

func (a *InAppAdapter) Channel() Channel { return ChannelInApp }

func (a *InAppAdapter) Deliver(ctx context.Context, n Notification) (Outcome, error) {
	if err := a.hub.Publish(ctx, n.RecipientID, n); err != nil {
		a.logger.LogAttrs(ctx, slog.LevelWarn, "failed to publish in-app notification",
			logger.NotificationID(n.ID),
			logger.UserID(n.RecipientID),
			logger.Error(err),
		)
	}
	return OutcomeHandedOff, nil
}

// Subscribe returns a live stream of the user's in-app notifications.
// The subscription ends when ctx is cancelled.
func (a *InAppAdapter) Subscribe(ctx context.Context, userID string) broadcast.Subscriber[Notification] {
	return a.hub.Subscribe(ctx, userID)
}

// Subscribers reports the number of live subscribers for a user.
func (a *InAppAdapter) Subscribers(userID string) int {
	return a.hub.Subscribers(userID)
}

func (a *InAppAdapter) Close() error {
	return a.hub.Close()
}
