// Package asynqretry runs notification retries through asynq, so pending
// retries survive restarts and are shared by every replica.
package asynqretry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dmitrymomot/notifykit/pkg/logger"
	"github.com/dmitrymomot/notifykit/pkg/notifications"
)

// TaskRetry is the asynq task type of a notification retry.
const TaskRetry = "notification:retry"

const DefaultQueue = "notifications"

// Deferrer enqueues retries as delayed asynq tasks.
type Deferrer struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
	logger    *slog.Logger

	mu      sync.RWMutex
	handler notifications.RetryHandler
}

// Option configures a Deferrer.
type Option func(*Deferrer)

func WithQueue(name string) Option {
	return func(d *Deferrer) {
		if name != "" {
			d.queue = name
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Deferrer) {
		if l != nil {
			d.logger = l
		}
	}
}

func NewDeferrer(redisOpt asynq.RedisConnOpt, opts ...Option) *Deferrer {
	d := &Deferrer{
		client:    asynq.NewClient(redisOpt),
		inspector: asynq.NewInspector(redisOpt),
		queue:     DefaultQueue,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(logger.Component("asynq-retry"))
	return d
}

func (d *Deferrer) Bind(h notifications.RetryHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

// TaskID identifies one attempt. Enqueueing the same attempt twice is a no-op.
func TaskID(t notifications.RetryTask) string {
	return fmt.Sprintf("%s:%s:%d", t.NotificationID, t.Channel, t.Attempt)
}

func (d *Deferrer) Defer(ctx context.Context, t notifications.RetryTask, delay time.Duration) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal retry task: %w", err)
	}

	task := asynq.NewTask(TaskRetry, payload,
		asynq.TaskID(TaskID(t)),
		asynq.Queue(d.queue),
		asynq.ProcessIn(delay),
		// The retry scheduler owns the attempt budget.
		asynq.MaxRetry(0),
	)
	info, err := d.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		d.logger.LogAttrs(ctx, slog.LevelDebug, "retry already enqueued",
			logger.NotificationID(t.NotificationID), slog.String("task_id", TaskID(t)))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to enqueue retry: %w", err)
	}

	d.logger.LogAttrs(ctx, slog.LevelDebug, "retry enqueued",
		logger.NotificationID(t.NotificationID),
		logger.Channel(string(t.Channel)),
		logger.RetryCount(t.Attempt),
		slog.String("queue", info.Queue),
		slog.Time("process_at", info.NextProcessAt),
	)
	return nil
}

// Pending counts scheduled retries of a notification. Lookup failures are
// logged and reported as zero.
func (d *Deferrer) Pending(notificationID string) int {
	const pageSize = 200

	count := 0
	for page := 1; ; page++ {
		tasks, err := d.inspector.ListScheduledTasks(d.queue, asynq.Page(page), asynq.PageSize(pageSize))
		if err != nil {
			if !errors.Is(err, asynq.ErrQueueNotFound) {
				d.logger.LogAttrs(context.Background(), slog.LevelWarn, "failed to list scheduled retries",
					logger.NotificationID(notificationID), logger.Error(err))
			}
			return count
		}
		for _, info := range tasks {
			var t notifications.RetryTask
			if info.Type == TaskRetry && json.Unmarshal(info.Payload, &t) == nil && t.NotificationID == notificationID {
				count++
			}
		}
		if len(tasks) < pageSize {
			return count
		}
	}
}

// Process is the asynq handler for TaskRetry.
func (d *Deferrer) Process(ctx context.Context, task *asynq.Task) error {
	var t notifications.RetryTask
	if err := json.Unmarshal(task.Payload(), &t); err != nil {
		return fmt.Errorf("failed to unmarshal retry task: %w", errors.Join(err, asynq.SkipRetry))
	}

	d.mu.RLock()
	h := d.handler
	d.mu.RUnlock()
	if h == nil {
		return fmt.Errorf("no retry handler bound: %w", asynq.SkipRetry)
	}

	if err := h(ctx, t); err != nil {
		return fmt.Errorf("retry %s: %w", TaskID(t), errors.Join(err, asynq.SkipRetry))
	}
	return nil
}

func (d *Deferrer) Close() error {
	return errors.Join(d.client.Close(), d.inspector.Close())
}
