package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dmitrymomot/notifykit/pkg/broadcast"
	"github.com/dmitrymomot/notifykit/pkg/cache"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

const (
	DefaultCacheSize     = 1000
	DefaultInAppBuffer   = 16
	DefaultDismissReason = "user_action"
	DefaultDeleteReason  = "user_request"
)

// Service is the notification engine: it creates, reads and mutates
// notifications through a Storage and delivers them over the registered
// channels. One Service is built per process and is safe for concurrent use.
type Service struct {
	raw        Storage
	store      Storage
	cache      cache.Cache
	gate       EncryptionGate
	renderer   TemplateRenderer
	registry   *ChannelRegistry
	inApp      *InAppAdapter
	push       *PushAdapter
	deferrer   Deferrer
	retries    *RetryScheduler
	dispatcher *Dispatcher
	audit      AuditSink
	clock      clockwork.Clock
	logger     *slog.Logger

	adapters       []ChannelAdapter
	channelTimeout time.Duration
	defaultPolicy  RetryPolicy
	readTTL        time.Duration
	statsTTL       time.Duration
	smsRate        float64
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock for timestamps, retries, cache TTLs and sweeps.
func WithClock(c clockwork.Clock) ServiceOption {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithCache replaces the default in-memory read cache.
func WithCache(c cache.Cache) ServiceOption {
	return func(s *Service) { s.cache = c }
}

// WithCacheTTL sets the lifetimes of cached reads and cached statistics.
func WithCacheTTL(read, stats time.Duration) ServiceOption {
	return func(s *Service) {
		s.readTTL, s.statsTTL = read, stats
	}
}

// WithEncryptionGate enables encryption of sensitive data at rest.
func WithEncryptionGate(g EncryptionGate) ServiceOption {
	return func(s *Service) { s.gate = g }
}

// WithTemplateRenderer replaces the template renderer. Without it the
// storage renders when it can, otherwise the embedded catalog is used.
func WithTemplateRenderer(r TemplateRenderer) ServiceOption {
	return func(s *Service) { s.renderer = r }
}

// WithChannels registers channel adapters, replacing the defaults for the
// same channels.
func WithChannels(adapters ...ChannelAdapter) ServiceOption {
	return func(s *Service) { s.adapters = append(s.adapters, adapters...) }
}

// WithDeferrer replaces the in-process retry timers.
func WithDeferrer(d Deferrer) ServiceOption {
	return func(s *Service) { s.deferrer = d }
}

// WithAuditSink replaces the log-backed audit sink.
func WithAuditSink(a AuditSink) ServiceOption {
	return func(s *Service) { s.audit = a }
}

// WithChannelTimeout bounds each adapter call.
func WithChannelTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.channelTimeout = d
		}
	}
}

// WithDefaultRetryPolicy applies to notifications created without a policy.
func WithDefaultRetryPolicy(p RetryPolicy) ServiceOption {
	return func(s *Service) {
		if !p.IsZero() {
			s.defaultPolicy = p
		}
	}
}

// WithSMSRate sets the send rate of the default SMS adapter.
func WithSMSRate(rps float64) ServiceOption {
	return func(s *Service) {
		if rps > 0 {
			s.smsRate = rps
		}
	}
}

// NewService builds the engine around storage. Optional storage
// capabilities (remote channel sends, push, rendering, sweeps) are detected
// and wired automatically.
func NewService(storage Storage, opts ...ServiceOption) (*Service, error) {
	if storage == nil {
		return nil, errors.New("notifications: storage is required")
	}

	s := &Service{
		raw:            storage,
		clock:          clockwork.NewRealClock(),
		logger:         slog.Default(),
		channelTimeout: DefaultChannelTimeout,
		defaultPolicy:  RetryGradual,
		readTTL:        DefaultCacheTTL,
		statsTTL:       DefaultStatsTTL,
		smsRate:        DefaultSMSRate,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("notifications"))

	if s.cache == nil {
		s.cache = cache.NewTaggedCache(DefaultCacheSize, cache.WithClock(s.clock))
	}
	s.store = NewCachedStorage(storage, s.cache,
		WithReadTTL(s.readTTL),
		WithStatsTTL(s.statsTTL),
		WithCacheLogger(s.logger),
	)

	if s.renderer == nil {
		if r, ok := storage.(TemplateRenderer); ok {
			s.renderer = r
		} else {
			r, err := NewCatalogRenderer()
			if err != nil {
				return nil, fmt.Errorf("load template catalog: %w", err)
			}
			s.renderer = r
		}
	}
	if s.audit == nil {
		s.audit = NewLogAuditSink(s.logger)
	}
	if s.deferrer == nil {
		s.deferrer = NewTimerDeferrer(WithTimerClock(s.clock), WithTimerLogger(s.logger))
	}

	s.registry = NewChannelRegistry(s.defaultAdapters()...)
	for _, a := range s.adapters {
		s.registry.Register(a)
	}
	s.captureAdapters()

	s.retries = NewRetryScheduler(s.store, s.deferrer, s.defaultPolicy, s.logger)
	s.dispatcher = newDispatcher(s.store, s.registry, s.gate, s.retries, s.clock, s.channelTimeout, s.logger)
	s.deferrer.Bind(s.dispatcher.redeliver)
	if s.push != nil {
		s.push.bindReadMarker(func(ctx context.Context, id string) error {
			_, err := s.MarkAsRead(ctx, id)
			return err
		})
	}
	return s, nil
}

func (s *Service) defaultAdapters() []ChannelAdapter {
	adapters := []ChannelAdapter{
		NewInAppAdapter(DefaultInAppBuffer, WithInAppLogger(s.logger)),
	}
	if sender, ok := s.raw.(RemoteSender); ok {
		adapters = append(adapters,
			NewRemoteAdapter(ChannelEmail, sender),
			NewSMSAdapter(sender, s.smsRate),
			NewRemoteAdapter(ChannelWebhook, sender),
		)
	}
	if sender, ok := s.raw.(PushSender); ok {
		var opts []PushOption
		if r, ok := s.raw.(PushSubscriptionRegistry); ok {
			opts = append(opts, WithPushRegistry(r))
		}
		if e, ok := s.raw.(ActionExecutor); ok {
			opts = append(opts, WithActionExecutor(e))
		}
		opts = append(opts, WithPushClock(s.clock), WithPushLogger(s.logger))
		adapters = append(adapters, NewPushAdapter(nil, sender, opts...))
	}
	return adapters
}

// captureAdapters keeps the registered in-app and push adapters for the
// subscription APIs.
func (s *Service) captureAdapters() {
	if a, ok := s.registry.Lookup(ChannelInApp); ok {
		s.inApp, _ = a.(*InAppAdapter)
	}
	if a, ok := s.registry.Lookup(ChannelPush); ok {
		s.push, _ = a.(*PushAdapter)
	}
}

// CreateOptions controls a single create.
type CreateOptions struct {
	// Channels overrides the notification's delivery channels.
	Channels []Channel
	// ScheduleDelivery leaves the notification pending for the background
	// processor instead of delivering it right away.
	ScheduleDelivery bool
	RetryPolicy      RetryPolicy
	SkipEncryption   bool
	SkipAudit        bool
}

// CreateNotification renders, validates and persists n, then delivers it
// unless delivery is scheduled. Delivery failures do not fail the create;
// they are recorded on the notification.
func (s *Service) CreateNotification(ctx context.Context, n Notification, opts CreateOptions) (Notification, error) {
	plain, err := s.prepare(ctx, n, opts)
	if err != nil {
		return Notification{}, err
	}
	sealed, err := s.seal(ctx, plain, opts.SkipEncryption)
	if err != nil {
		return Notification{}, err
	}

	stored, err := s.store.Create(ctx, sealed)
	if err != nil {
		return Notification{}, fmt.Errorf("create notification: %w", err)
	}
	if !opts.SkipAudit {
		s.recordAudit(ctx, AuditCreate, stored.ID, stored.RecipientID, map[string]any{
			"type":     string(stored.Type),
			"priority": string(stored.Priority),
			"channels": stored.DeliveryChannels,
		})
	}

	if opts.ScheduleDelivery {
		return s.open(ctx, stored), nil
	}
	if _, err := s.dispatcher.Deliver(ctx, stored.ID, nil); err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "notification stored but delivery failed",
			logger.NotificationID(stored.ID),
			logger.UserID(stored.RecipientID),
			logger.Error(err),
		)
		return s.open(ctx, stored), nil
	}
	return s.GetNotification(ctx, stored.ID, true)
}

// prepare applies defaults, renders the template, validates and resolves
// priority and expiration. The result carries a client-side ID.
func (s *Service) prepare(ctx context.Context, n Notification, opts CreateOptions) (Notification, error) {
	n = n.Clone()
	if n.Template != "" {
		r, err := s.renderer.Render(ctx, n.Template, n.TemplateData)
		if err != nil {
			return Notification{}, err
		}
		if n.Type == "" {
			n.Type = r.Type
		}
		if n.Category == "" {
			n.Category = r.Category
		}
		n.Title, n.Body = r.Title, r.Body
		if len(n.Actions) == 0 {
			n.Actions = r.Actions
		}
	}

	if len(opts.Channels) > 0 {
		n.DeliveryChannels = slices.Clone(opts.Channels)
	}
	if len(n.DeliveryChannels) == 0 {
		n.DeliveryChannels = []Channel{ChannelInApp}
	}
	if !opts.RetryPolicy.IsZero() {
		n.RetryPolicy = opts.RetryPolicy
	}
	if n.RetryPolicy.IsZero() {
		n.RetryPolicy = s.defaultPolicy
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.clock.Now()
	}

	if err := Validate(n); err != nil {
		return Notification{}, err
	}

	if n.Priority == "" {
		n.Priority = ResolvePriority(n.Type)
	}
	if n.ExpiresAt.IsZero() {
		n.ExpiresAt = ResolveExpiration(n.Priority, n.CreatedAt)
	}
	if n.ID == "" {
		n.ID = NewID()
	}
	n.Status = StatusPending
	n.Attempts = 0
	n.DeliveryResults = nil
	n.ReadAt, n.DismissedAt = nil, nil
	return n, nil
}

func (s *Service) seal(ctx context.Context, n Notification, skip bool) (Notification, error) {
	if s.gate == nil || skip {
		return n, nil
	}
	out, err := s.gate.Encrypt(ctx, n)
	if err != nil {
		return Notification{}, fmt.Errorf("encrypt notification: %w", err)
	}
	return out, nil
}

// open decrypts n for the caller. A failure is logged and the record is
// returned as stored.
func (s *Service) open(ctx context.Context, n Notification) Notification {
	if s.gate == nil || !n.IsEncrypted() {
		return n
	}
	out, err := s.gate.Decrypt(ctx, n)
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelWarn, "failed to decrypt notification",
			logger.NotificationID(n.ID), logger.Error(err))
		return n
	}
	return out
}

// GetNotification returns one notification, decrypted when decrypt is set.
func (s *Service) GetNotification(ctx context.Context, id string, decrypt bool) (Notification, error) {
	n, err := s.store.Get(ctx, id)
	if err != nil {
		return Notification{}, err
	}
	if decrypt {
		n = s.open(ctx, n)
	}
	return n, nil
}

// GetNotifications returns one page of notifications matching filter.
func (s *Service) GetNotifications(ctx context.Context, filter ListFilter, decrypt bool) (ListResult, error) {
	res, err := s.store.List(ctx, filter)
	if err != nil {
		return ListResult{}, err
	}
	if decrypt {
		for i, n := range res.Notifications {
			res.Notifications[i] = s.open(ctx, n)
		}
	}
	return res, nil
}

func (s *Service) GetNotificationStats(ctx context.Context, q StatsQuery) (Stats, error) {
	return s.store.Stats(ctx, q)
}

// MarkAsRead marks a delivered notification as read. Reading it again is a
// no-op that keeps the first read time.
func (s *Service) MarkAsRead(ctx context.Context, id string) (Notification, error) {
	n, err := getFresh(ctx, s.store, id)
	if err != nil {
		return Notification{}, err
	}
	if n.Status == StatusRead {
		return s.open(ctx, n), nil
	}

	now := s.clock.Now()
	from, err := ApplyEvent(ctx, &n, EventRead, now)
	if err != nil {
		s.logger.LogAttrs(ctx, slog.LevelDebug, "mark as read rejected",
			logger.NotificationID(id), logger.Status(string(from)), logger.Error(err))
		return Notification{}, err
	}

	stored, err := s.store.MarkRead(ctx, id, *n.ReadAt)
	if err != nil {
		return Notification{}, fmt.Errorf("mark notification read: %w", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "notification status changed",
		logger.NotificationID(id),
		logger.Transition(string(from), string(StatusRead), string(EventRead)),
	)
	s.recordAudit(ctx, AuditMarkRead, id, stored.RecipientID, nil)
	return s.open(ctx, stored), nil
}

// MarkAllAsRead marks every unread notification of userID as read,
// optionally limited to a category and type, and returns how many changed.
func (s *Service) MarkAllAsRead(ctx context.Context, userID string, category Category, typ Type) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	count, err := s.store.MarkAllRead(ctx, MarkAllReadParams{
		UserID:   userID,
		Category: category,
		Type:     typ,
		ReadAt:   s.clock.Now(),
	})
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	s.recordAudit(ctx, AuditMarkRead, "", userID, map[string]any{
		"count":    count,
		"category": string(category),
		"type":     string(typ),
	})
	return count, nil
}

// DismissNotification dismisses a non-terminal notification. An empty
// reason records DefaultDismissReason.
func (s *Service) DismissNotification(ctx context.Context, id, reason string) (Notification, error) {
	if reason == "" {
		reason = DefaultDismissReason
	}
	n, err := getFresh(ctx, s.store, id)
	if err != nil {
		return Notification{}, err
	}

	now := s.clock.Now()
	from, err := ApplyEvent(ctx, &n, EventDismiss, now)
	if err != nil {
		return Notification{}, err
	}
	stored, err := s.store.Dismiss(ctx, id, reason, now)
	if err != nil {
		return Notification{}, fmt.Errorf("dismiss notification: %w", err)
	}
	s.logger.LogAttrs(ctx, slog.LevelDebug, "notification status changed",
		logger.NotificationID(id),
		logger.Transition(string(from), string(StatusDismissed), string(EventDismiss)),
	)
	s.recordAudit(ctx, AuditDismiss, id, stored.RecipientID, map[string]any{"reason": reason})
	return s.open(ctx, stored), nil
}

// DeleteNotification removes a notification. An empty reason records
// DefaultDeleteReason.
func (s *Service) DeleteNotification(ctx context.Context, id, reason string) error {
	if reason == "" {
		reason = DefaultDeleteReason
	}
	n, err := getFresh(ctx, s.store, id)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id, reason, s.clock.Now()); err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	s.recordAudit(ctx, AuditDelete, id, n.RecipientID, map[string]any{"reason": reason})
	return nil
}

// DeliverNotification delivers a stored notification now, over channels or
// its own delivery channels when none are given.
func (s *Service) DeliverNotification(ctx context.Context, id string, channels ...Channel) (DeliveryReport, error) {
	return s.dispatcher.Deliver(ctx, id, channels)
}

// Subscribe returns a live stream of userID's in-app notifications until
// ctx is cancelled.
func (s *Service) Subscribe(ctx context.Context, userID string) (broadcast.Subscriber[Notification], error) {
	if s.inApp == nil {
		return nil, fmt.Errorf("%w: in-app channel is not an in-process adapter", ErrNotSupported)
	}
	return s.inApp.Subscribe(ctx, userID), nil
}

// EnablePush runs the push permission flow for userID.
func (s *Service) EnablePush(ctx context.Context, userID string) (PushSubscription, error) {
	if s.push == nil {
		return PushSubscription{}, fmt.Errorf("%w: push channel is not configured", ErrUnsupportedChannel)
	}
	return s.push.Enable(ctx, userID)
}

// ServiceStats describes the engine's own state.
type ServiceStats struct {
	Channels       []Channel       `json:"channels"`
	PushSubscribed bool            `json:"pushSubscribed"`
	PushPermission PermissionState `json:"pushPermission"`
	CacheEntries   int             `json:"cacheEntries"`
}

func (s *Service) Stats() ServiceStats {
	st := ServiceStats{
		Channels:       s.registry.Channels(),
		PushPermission: PermissionDefault,
		CacheEntries:   -1,
	}
	if s.push != nil {
		_, st.PushSubscribed = s.push.Subscription()
		st.PushPermission = s.push.Permission()
	}
	if l, ok := s.cache.(interface{ Len() int }); ok {
		st.CacheEntries = l.Len()
	}
	return st
}

// Enumerations returns the fixed value sets of the model.
func (s *Service) Enumerations() Enumerations {
	return AllEnumerations()
}

// Processor returns a background processor bound to this service.
func (s *Service) Processor(opts ...ProcessorOption) *Processor {
	return NewProcessor(s, opts...)
}

// Close stops pending retries and closes live in-app streams.
func (s *Service) Close() error {
	var errs []error
	if err := s.deferrer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close deferrer: %w", err))
	}
	if s.inApp != nil {
		if err := s.inApp.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close in-app streams: %w", err))
		}
	}
	return errors.Join(errs...)
}
