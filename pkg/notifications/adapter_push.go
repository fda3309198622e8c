package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/dmitrymomot/notifykit/pkg/fcm"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// PermissionState is the platform's push permission.
type PermissionState string

const (
	PermissionDefault PermissionState = "default"
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
)

// PlatformPush is the host platform's push capability.
type PlatformPush interface {
	RequestPermission(ctx context.Context) (PermissionState, error)
	Permission() PermissionState
	// Subscribe registers the device with the push service using the
	// application server key and returns the new subscription.
	Subscribe(ctx context.Context, applicationKey string) (PushSubscription, error)
	// GetKey returns key material of the current subscription ("p256dh" or "auth").
	GetKey(ctx context.Context, name string) (string, error)
}

// LocalNotifier is implemented by platforms that can show a notification
// on the device. onClick runs when the user activates it.
type LocalNotifier interface {
	ShowLocal(ctx context.Context, n Notification, onClick func(context.Context)) error
}

// SubscriptionStore resolves push subscriptions per recipient.
type SubscriptionStore interface {
	PushSubscription(ctx context.Context, userID string) (PushSubscription, bool, error)
}

// PushSubscriptions is an in-memory SubscriptionStore. A new subscription
// for a user replaces the previous one.
type PushSubscriptions struct {
	mu   sync.RWMutex
	subs map[string]PushSubscription
}

func NewPushSubscriptions() *PushSubscriptions {
	return &PushSubscriptions{subs: make(map[string]PushSubscription)}
}

func (p *PushSubscriptions) Set(userID string, sub PushSubscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs[userID] = sub
}

func (p *PushSubscriptions) Remove(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subs, userID)
}

func (p *PushSubscriptions) PushSubscription(_ context.Context, userID string) (PushSubscription, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	sub, ok := p.subs[userID]
	return sub, ok, nil
}

// PushAdapter delivers push notifications and owns the subscription lifecycle.
type PushAdapter struct {
	platform PlatformPush
	sender   PushSender
	registry PushSubscriptionRegistry
	store    SubscriptionStore
	actions  ActionExecutor
	markRead func(ctx context.Context, id string) error
	clock    clockwork.Clock
	logger   *slog.Logger

	mu  sync.RWMutex
	sub *PushSubscription
}

// PushOption configures a PushAdapter.
type PushOption func(*PushAdapter)

// WithPushRegistry registers new subscriptions with the store and fetches
// the application server key from it.
func WithPushRegistry(r PushSubscriptionRegistry) PushOption {
	return func(a *PushAdapter) { a.registry = r }
}

// WithSubscriptionStore looks subscriptions up per recipient instead of
// using the single device subscription.
func WithSubscriptionStore(s SubscriptionStore) PushOption {
	return func(a *PushAdapter) { a.store = s }
}

// WithActionExecutor runs the default action when a local notification is clicked.
func WithActionExecutor(e ActionExecutor) PushOption {
	return func(a *PushAdapter) { a.actions = e }
}

func WithPushClock(c clockwork.Clock) PushOption {
	return func(a *PushAdapter) {
		if c != nil {
			a.clock = c
		}
	}
}

func WithPushLogger(l *slog.Logger) PushOption {
	return func(a *PushAdapter) {
		if l != nil {
			a.logger = l
		}
	}
}

// NewPushAdapter builds a push adapter. platform may be nil for server-side
// deployments that rely on a SubscriptionStore.
func NewPushAdapter(platform PlatformPush, sender PushSender, opts ...PushOption) *PushAdapter {
	a := &PushAdapter{
		platform: platform,
		sender:   sender,
		clock:    clockwork.NewRealClock(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *PushAdapter) Channel() Channel { return ChannelPush }

// bindReadMarker connects local notification clicks to the read path.
func (a *PushAdapter) bindReadMarker(fn func(ctx context.Context, id string) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.markRead = fn
}

// Enable asks for permission, subscribes the device and registers the
// subscription for userID. A registration failure is logged and the local
// subscription is kept.
func (a *PushAdapter) Enable(ctx context.Context, userID string) (PushSubscription, error) {
	if a.platform == nil {
		return PushSubscription{}, fmt.Errorf("%w: no push platform", ErrNotSupported)
	}

	perm := a.platform.Permission()
	if perm != PermissionGranted {
		var err error
		if perm, err = a.platform.RequestPermission(ctx); err != nil {
			return PushSubscription{}, fmt.Errorf("request push permission: %w", err)
		}
	}
	if perm != PermissionGranted {
		return PushSubscription{}, ErrPermissionDenied
	}

	var appKey string
	if a.registry != nil {
		key, err := a.registry.VAPIDKey(ctx)
		if err != nil {
			a.logger.LogAttrs(ctx, slog.LevelWarn, "failed to fetch push application key",
				logger.UserID(userID), logger.Error(err))
		}
		appKey = key
	}

	sub, err := a.platform.Subscribe(ctx, appKey)
	if err != nil {
		return PushSubscription{}, fmt.Errorf("push subscribe: %w", err)
	}
	if sub.P256dh == "" {
		sub.P256dh, _ = a.platform.GetKey(ctx, "p256dh")
	}
	if sub.Auth == "" {
		sub.Auth, _ = a.platform.GetKey(ctx, "auth")
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = a.clock.Now()
	}
	a.SetSubscription(sub)

	if a.registry != nil {
		if err := a.registry.RegisterPushSubscription(ctx, userID, sub); err != nil {
			a.logger.LogAttrs(ctx, slog.LevelWarn, "failed to register push subscription",
				logger.UserID(userID), logger.Error(err))
		}
	}
	return sub, nil
}

// SetSubscription replaces the device subscription.
func (a *PushAdapter) SetSubscription(sub PushSubscription) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sub = &sub
}

// ClearSubscription drops the device subscription.
func (a *PushAdapter) ClearSubscription() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sub = nil
}

// Subscription returns the device subscription, if any.
func (a *PushAdapter) Subscription() (PushSubscription, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.sub == nil {
		return PushSubscription{}, false
	}
	return *a.sub, true
}

// Permission reports the platform permission, or default without a platform.
func (a *PushAdapter) Permission() PermissionState {
	if a.platform == nil {
		return PermissionDefault
	}
	return a.platform.Permission()
}

func (a *PushAdapter) Deliver(ctx context.Context, n Notification) (Outcome, error) {
	sub, ok, err := a.subscriptionFor(ctx, n.RecipientID)
	if err != nil {
		return "", deliveryError(n, ChannelPush, err)
	}
	if !ok {
		return "", deliveryError(n, ChannelPush, ErrNoSubscription)
	}

	if err := a.sender.SendPush(ctx, n, sub); err != nil {
		return "", deliveryError(n, ChannelPush, err)
	}

	if local, ok := a.platform.(LocalNotifier); ok && a.Permission() == PermissionGranted {
		if err := local.ShowLocal(ctx, n, a.clickHandler(n)); err != nil {
			a.logger.LogAttrs(ctx, slog.LevelWarn, "failed to show local notification",
				logger.NotificationID(n.ID), logger.Error(err))
		}
	}
	return OutcomeConfirmed, nil
}

func (a *PushAdapter) subscriptionFor(ctx context.Context, userID string) (PushSubscription, bool, error) {
	if a.store != nil {
		return a.store.PushSubscription(ctx, userID)
	}
	sub, ok := a.Subscription()
	return sub, ok, nil
}

func (a *PushAdapter) clickHandler(n Notification) func(context.Context) {
	return func(ctx context.Context) {
		if action, ok := DefaultAction(n.Actions); ok && a.actions != nil {
			if err := a.actions.ExecuteAction(ctx, n.ID, action); err != nil {
				a.logger.LogAttrs(ctx, slog.LevelWarn, "failed to execute notification action",
					logger.NotificationID(n.ID), slog.String("action", string(action.Type)), logger.Error(err))
			}
		}

		a.mu.RLock()
		markRead := a.markRead
		a.mu.RUnlock()
		if markRead == nil {
			return
		}
		if err := markRead(ctx, n.ID); err != nil && !errors.Is(err, ErrTerminalState) {
			a.logger.LogAttrs(ctx, slog.LevelWarn, "failed to mark clicked notification as read",
				logger.NotificationID(n.ID), logger.Error(err))
		}
	}
}

// FCMSender delivers push notifications through Firebase Cloud Messaging.
type FCMSender struct {
	sender *fcm.Sender
}

func NewFCMSender(s *fcm.Sender) *FCMSender {
	return &FCMSender{sender: s}
}

func (s *FCMSender) SendPush(ctx context.Context, n Notification, sub PushSubscription) error {
	if sub.Token == "" {
		return ErrNoSubscription
	}
	data := map[string]string{
		"notificationId": n.ID,
		"type":           string(n.Type),
	}
	if action, ok := DefaultAction(n.Actions); ok && action.URL != "" {
		data["url"] = action.URL
	}

	_, err := s.sender.Send(ctx, sub.Token, fcm.Message{
		Title:        n.Title,
		Body:         n.Body,
		Data:         data,
		HighPriority: n.Priority == PriorityHigh || n.Priority == PriorityUrgent || n.Priority == PriorityCritical,
	})
	if errors.Is(err, fcm.ErrUnregistered) {
		return errors.Join(ErrNoSubscription, err)
	}
	return err
}
