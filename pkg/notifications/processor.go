package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/dmitrymomot/notifykit/pkg/logger"
)

const (
	DefaultPendingInterval    = 5 * time.Minute
	DefaultExpirationInterval = 60 * time.Minute
	DefaultPendingGrace       = time.Minute
	DefaultSweepPageSize      = 100
)

// SweepReport summarizes one sweep run.
type SweepReport struct {
	Scanned   int `json:"scanned"`
	Processed int `json:"processed"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Processor runs the periodic pending and expiration sweeps.
type Processor struct {
	svc                *Service
	pendingInterval    time.Duration
	expirationInterval time.Duration
	grace              time.Duration
	pageSize           int
	remote             RemoteSweeper
	logger             *slog.Logger

	pendingRunning    atomic.Bool
	expirationRunning atomic.Bool
	scheduler         gocron.Scheduler
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

func WithPendingInterval(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.pendingInterval = d
		}
	}
}

func WithExpirationInterval(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.expirationInterval = d
		}
	}
}

// WithPendingGrace sets how old a pending notification must be before the
// sweep picks it up, leaving room for the dispatch started at creation.
func WithPendingGrace(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d >= 0 {
			p.grace = d
		}
	}
}

func WithSweepPageSize(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.pageSize = min(n, maxPageLimit)
		}
	}
}

// WithRemoteSweeps delegates both sweeps to the store when it supports it.
// It is a no-op for stores that don't.
func WithRemoteSweeps() ProcessorOption {
	return func(p *Processor) {
		if rs, ok := p.svc.raw.(RemoteSweeper); ok {
			p.remote = rs
		}
	}
}

func NewProcessor(svc *Service, opts ...ProcessorOption) *Processor {
	p := &Processor{
		svc:                svc,
		pendingInterval:    DefaultPendingInterval,
		expirationInterval: DefaultExpirationInterval,
		grace:              DefaultPendingGrace,
		pageSize:           DefaultSweepPageSize,
		logger:             svc.logger.With(logger.Component("processor")),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start schedules both sweeps. A run still in progress when the next one is
// due makes the scheduler skip ahead instead of queueing.
func (p *Processor) Start(ctx context.Context) error {
	s, err := gocron.NewScheduler(
		gocron.WithClock(p.svc.clock),
		gocron.WithLogger(p.logger),
	)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	jobs := []struct {
		name     string
		interval time.Duration
		run      func(context.Context) (SweepReport, error)
	}{
		{"pending-sweep", p.pendingInterval, p.RunPendingSweep},
		{"expiration-sweep", p.expirationInterval, p.RunExpirationSweep},
	}
	for _, j := range jobs {
		_, err := s.NewJob(
			gocron.DurationJob(j.interval),
			gocron.NewTask(func() {
				if _, err := j.run(ctx); err != nil && !errors.Is(err, ErrSweepInProgress) {
					p.logger.LogAttrs(ctx, slog.LevelError, "sweep failed",
						slog.String("job", j.name), logger.Error(err))
				}
			}),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = s.Shutdown()
			return fmt.Errorf("schedule %s: %w", j.name, err)
		}
	}

	p.scheduler = s
	s.Start()
	p.logger.LogAttrs(ctx, slog.LevelInfo, "background processor started",
		slog.Duration("pending_interval", p.pendingInterval),
		slog.Duration("expiration_interval", p.expirationInterval),
		slog.Bool("remote", p.remote != nil),
	)
	return nil
}

// Stop shuts the scheduler down and waits for running sweeps.
func (p *Processor) Stop() error {
	if p.scheduler == nil {
		return nil
	}
	return p.scheduler.Shutdown()
}

// RunPendingSweep drives pending notifications older than the grace period
// through the dispatcher. Per-item failures are counted, not returned.
func (p *Processor) RunPendingSweep(ctx context.Context) (SweepReport, error) {
	if !p.pendingRunning.CompareAndSwap(false, true) {
		return SweepReport{}, ErrSweepInProgress
	}
	defer p.pendingRunning.Store(false)

	if p.remote != nil {
		res, err := p.remote.ProcessPending(ctx)
		if err != nil {
			return SweepReport{}, fmt.Errorf("remote pending sweep: %w", err)
		}
		p.logger.LogAttrs(ctx, slog.LevelInfo, "remote pending sweep finished",
			slog.Int("processed_count", res.ProcessedCount),
			slog.Int("failed_count", res.FailedCount))
		return SweepReport{
			Scanned:   res.ProcessedCount + res.FailedCount,
			Processed: res.ProcessedCount,
			Failed:    res.FailedCount,
		}, nil
	}

	now := p.svc.clock.Now()
	ids, err := p.collect(ctx, ListFilter{
		Status:        StatusPending,
		CreatedBefore: now.Add(-p.grace),
		SortBy:        SortByCreatedAt,
		SortOrder:     SortAsc,
	})
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{Scanned: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		n, err := getFresh(ctx, p.svc.store, id)
		if err != nil {
			report.Failed++
			p.logItemError(ctx, "pending sweep: load failed", id, err)
			continue
		}
		// Items already handled since listing, or waiting on a retry timer,
		// are left alone.
		if n.Status != StatusPending || p.svc.retries.Pending(id) > 0 {
			report.Skipped++
			continue
		}
		if _, err := p.svc.dispatcher.Deliver(ctx, id, nil); err != nil {
			if errors.Is(err, ErrTerminalState) {
				report.Skipped++
				continue
			}
			report.Failed++
			p.logItemError(ctx, "pending sweep: delivery failed", id, err)
			continue
		}
		report.Processed++
	}

	p.logSweep(ctx, "pending sweep finished", report)
	return report, nil
}

// RunExpirationSweep expires every non-terminal notification whose expiry
// has passed. Running it twice is harmless.
func (p *Processor) RunExpirationSweep(ctx context.Context) (SweepReport, error) {
	if !p.expirationRunning.CompareAndSwap(false, true) {
		return SweepReport{}, ErrSweepInProgress
	}
	defer p.expirationRunning.Store(false)

	if p.remote != nil {
		res, err := p.remote.CleanupExpired(ctx)
		if err != nil {
			return SweepReport{}, fmt.Errorf("remote expiration sweep: %w", err)
		}
		p.logger.LogAttrs(ctx, slog.LevelInfo, "remote expiration sweep finished",
			slog.Int("cleaned_count", res.CleanedCount))
		return SweepReport{Scanned: res.CleanedCount, Processed: res.CleanedCount}, nil
	}

	now := p.svc.clock.Now()
	ids, err := p.collect(ctx, ListFilter{
		ExpiresBefore: now,
		SortBy:        SortByExpiresAt,
		SortOrder:     SortAsc,
	})
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{Scanned: len(ids)}
	for _, id := range ids {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		n, err := getFresh(ctx, p.svc.store, id)
		if err != nil {
			report.Failed++
			p.logItemError(ctx, "expiration sweep: load failed", id, err)
			continue
		}
		if n.Status.IsTerminal() || !n.IsExpired(now) {
			report.Skipped++
			p.logger.LogAttrs(ctx, slog.LevelDebug, "expiration sweep: skipped",
				logger.NotificationID(id),
				logger.Status(string(n.Status)),
			)
			continue
		}
		from, err := ApplyEvent(ctx, &n, EventExpire, now)
		if err != nil {
			report.Skipped++
			p.logger.LogAttrs(ctx, slog.LevelDebug, "expiration sweep: skipped",
				logger.NotificationID(id),
				logger.Status(string(n.Status)),
				logger.Error(err),
			)
			continue
		}
		if _, err := p.svc.store.UpdateStatus(ctx, id, StatusUpdate{Status: n.Status, At: now}); err != nil {
			report.Failed++
			p.logItemError(ctx, "expiration sweep: update failed", id, err)
			continue
		}
		p.logger.LogAttrs(ctx, slog.LevelInfo, "notification status changed",
			logger.NotificationID(id),
			logger.Transition(string(from), string(n.Status), string(EventExpire)),
		)
		report.Processed++
	}

	p.logSweep(ctx, "expiration sweep finished", report)
	return report, nil
}

// collect pages through the filter and returns the matching IDs. IDs are
// gathered up front so that status changes made by the sweep do not shift
// later pages.
func (p *Processor) collect(ctx context.Context, filter ListFilter) ([]string, error) {
	filter.Limit = p.pageSize
	var ids []string
	for page := 1; ; page++ {
		filter.Page = page
		res, err := listFresh(ctx, p.svc.store, filter)
		if err != nil {
			return ids, fmt.Errorf("list notifications: %w", err)
		}
		for _, n := range res.Notifications {
			ids = append(ids, n.ID)
		}
		if !res.HasMore || len(res.Notifications) == 0 {
			return ids, nil
		}
	}
}

func (p *Processor) logItemError(ctx context.Context, msg, id string, err error) {
	p.logger.LogAttrs(ctx, slog.LevelWarn, msg, logger.NotificationID(id), logger.Error(err))
}

func (p *Processor) logSweep(ctx context.Context, msg string, r SweepReport) {
	p.logger.LogAttrs(ctx, slog.LevelInfo, msg,
		slog.Int("scanned", r.Scanned),
		slog.Int("processed", r.Processed),
		slog.Int("skipped", r.Skipped),
		slog.Int("failed", r.Failed),
	)
}
