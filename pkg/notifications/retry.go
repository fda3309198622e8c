package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/webhook"
)

// MaxRetryDelay caps the backoff between two attempts.
const MaxRetryDelay = 24 * time.Hour

// RetryTask identifies one deferred redelivery.
type RetryTask struct {
	NotificationID string  `json:"notificationId"`
	Channel        Channel `json:"channel"`
	Attempt        int     `json:"attempt"`
}

// RetryHandler redelivers a task when its delay elapses.
type RetryHandler func(ctx context.Context, task RetryTask) error

// Deferrer runs retry tasks after a delay.
type Deferrer interface {
	// Bind sets the handler invoked for due tasks. It is called once before
	// the first Defer.
	Bind(h RetryHandler)
	Defer(ctx context.Context, task RetryTask, delay time.Duration) error
	// Pending reports how many tasks are waiting for a notification. Deferrers
	// that cannot tell return 0.
	Pending(notificationID string) int
	Close() error
}

// RetryDelay returns the backoff before the next attempt: base * 2^attempts,
// capped at MaxRetryDelay.
func RetryDelay(p RetryPolicy, attempts int) time.Duration {
	return webhook.ExponentialBackoff{
		InitialInterval: p.BaseDelay,
		MaxInterval:     MaxRetryDelay,
		Multiplier:      2,
	}.NextInterval(attempts + 1)
}

// RetryScheduler decides whether a failed channel gets another attempt and
// defers it with exponential backoff.
type RetryScheduler struct {
	store         Storage
	deferrer      Deferrer
	defaultPolicy RetryPolicy
	logger        *slog.Logger
}

func NewRetryScheduler(store Storage, deferrer Deferrer, defaultPolicy RetryPolicy, log *slog.Logger) *RetryScheduler {
	if defaultPolicy.IsZero() {
		defaultPolicy = RetryGradual
	}
	if log == nil {
		log = slog.Default()
	}
	return &RetryScheduler{store: store, deferrer: deferrer, defaultPolicy: defaultPolicy, logger: log}
}

// ScheduleRetry defers another attempt of channel ch. It returns false
// without error when the notification has no attempts left or is terminal.
// The attempt counter is persisted before the retry is deferred.
func (r *RetryScheduler) ScheduleRetry(ctx context.Context, id string, ch Channel) (bool, error) {
	n, err := getFresh(ctx, r.store, id)
	if err != nil {
		return false, err
	}
	if n.Status.IsTerminal() {
		return false, nil
	}

	policy := n.RetryPolicy
	if policy.IsZero() {
		policy = r.defaultPolicy
	}
	if n.Attempts >= policy.MaxRetries {
		return false, nil
	}

	attempt, ok, err := r.store.IncrementAttempts(ctx, id, policy.MaxRetries)
	if err != nil {
		return false, fmt.Errorf("increment attempts: %w", err)
	}
	if !ok {
		r.logger.LogAttrs(ctx, slog.LevelDebug, "retry cap reached concurrently",
			logger.NotificationID(id),
			logger.Channel(string(ch)),
			logger.RetryCount(attempt),
		)
		return false, nil
	}
	delay := RetryDelay(policy, attempt-1)

	task := RetryTask{NotificationID: id, Channel: ch, Attempt: attempt}
	if err := r.deferrer.Defer(ctx, task, delay); err != nil {
		return false, fmt.Errorf("defer retry: %w", err)
	}

	r.logger.LogAttrs(ctx, slog.LevelDebug, "retry scheduled",
		logger.NotificationID(id),
		logger.Channel(string(ch)),
		logger.RetryCount(attempt),
		logger.Duration(delay),
	)
	return true, nil
}

// Pending reports deferred retries for a notification.
func (r *RetryScheduler) Pending(id string) int {
	return r.deferrer.Pending(id)
}

type timerKey struct {
	id string
	ch Channel
}

type timerEntry struct {
	timer clockwork.Timer
	seq   uint64
}

// TimerDeferrer runs retries in-process with clock timers. Each
// (notification, channel) pair has at most one timer; deferring the same
// pair again replaces it.
type TimerDeferrer struct {
	clock   clockwork.Clock
	logger  *slog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.Mutex
	timers  map[timerKey]timerEntry
	seq     uint64
	handler RetryHandler
	wg      sync.WaitGroup
}

// TimerOption configures a TimerDeferrer.
type TimerOption func(*TimerDeferrer)

func WithTimerClock(c clockwork.Clock) TimerOption {
	return func(d *TimerDeferrer) {
		if c != nil {
			d.clock = c
		}
	}
}

func WithTimerLogger(l *slog.Logger) TimerOption {
	return func(d *TimerDeferrer) {
		if l != nil {
			d.logger = l
		}
	}
}

func NewTimerDeferrer(opts ...TimerOption) *TimerDeferrer {
	d := &TimerDeferrer{
		clock:  clockwork.NewRealClock(),
		logger: slog.Default(),
		timers: make(map[timerKey]timerEntry),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

func (d *TimerDeferrer) Bind(h RetryHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

func (d *TimerDeferrer) Defer(_ context.Context, task RetryTask, delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ctx.Err() != nil {
		return d.ctx.Err()
	}

	key := timerKey{id: task.NotificationID, ch: task.Channel}
	if prev, ok := d.timers[key]; ok {
		prev.timer.Stop()
	}
	d.seq++
	seq := d.seq
	d.timers[key] = timerEntry{
		seq:   seq,
		timer: d.clock.AfterFunc(delay, func() { d.fire(key, seq, task) }),
	}
	return nil
}

func (d *TimerDeferrer) fire(key timerKey, seq uint64, task RetryTask) {
	d.mu.Lock()
	entry, ok := d.timers[key]
	if !ok || entry.seq != seq || d.ctx.Err() != nil {
		d.mu.Unlock()
		return
	}
	delete(d.timers, key)
	handler := d.handler
	d.wg.Add(1)
	d.mu.Unlock()
	defer d.wg.Done()

	if handler == nil {
		return
	}
	if err := handler(d.ctx, task); err != nil {
		d.logger.LogAttrs(d.ctx, slog.LevelError, "retry failed",
			logger.NotificationID(task.NotificationID),
			logger.Channel(string(task.Channel)),
			logger.RetryCount(task.Attempt),
			logger.Error(err),
		)
	}
}

func (d *TimerDeferrer) Pending(id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for k := range d.timers {
		if k.id == id {
			n++
		}
	}
	return n
}

// Close cancels every pending timer and waits for running handlers.
func (d *TimerDeferrer) Close() error {
	d.mu.Lock()
	d.cancel()
	for k, e := range d.timers {
		e.timer.Stop()
		delete(d.timers, k)
	}
	d.mu.Unlock()

	d.wg.Wait()
	return nil
}
