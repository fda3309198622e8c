package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/dmitrymomot/notifykit/pkg/async"
	"github.com/dmitrymomot/notifykit/pkg/logger"
)

// DefaultChannelTimeout bounds a single adapter call.
const DefaultChannelTimeout = 30 * time.Second

// ChannelReport is the outcome of one channel within a delivery.
type ChannelReport struct {
	Channel        Channel `json:"channel"`
	Success        bool    `json:"success"`
	Outcome        Outcome `json:"outcome,omitempty"`
	Error          string  `json:"error,omitempty"`
	Retryable      bool    `json:"retryable,omitempty"`
	RetryScheduled bool    `json:"retryScheduled,omitempty"`
}

// DeliveryReport summarizes one fan-out.
type DeliveryReport struct {
	NotificationID string          `json:"notificationId"`
	Successful     int             `json:"successful"`
	Failed         int             `json:"failed"`
	Channels       []ChannelReport `json:"channels"`
	Status         Status          `json:"status"`
}

type channelOutcome struct {
	channel Channel
	outcome Outcome
	err     error
}

// Dispatcher fans a notification out to its channel adapters and settles
// the lifecycle from the combined outcome.
type Dispatcher struct {
	store    Storage
	registry *ChannelRegistry
	gate     EncryptionGate
	retries  *RetryScheduler
	clock    clockwork.Clock
	timeout  time.Duration
	logger   *slog.Logger
}

func newDispatcher(store Storage, registry *ChannelRegistry, gate EncryptionGate, retries *RetryScheduler,
	clock clockwork.Clock, timeout time.Duration, log *slog.Logger,
) *Dispatcher {
	return &Dispatcher{
		store:    store,
		registry: registry,
		gate:     gate,
		retries:  retries,
		clock:    clock,
		timeout:  timeout,
		logger:   log,
	}
}

// Deliver sends notification id over channels, or over its requested
// channels when none are given. Channel failures are reported, not returned.
func (d *Dispatcher) Deliver(ctx context.Context, id string, channels []Channel) (DeliveryReport, error) {
	n, err := d.load(ctx, id)
	if err != nil {
		return DeliveryReport{}, err
	}
	if n.Status.IsTerminal() {
		return DeliveryReport{NotificationID: id, Status: n.Status},
			fmt.Errorf("%w: %s is %s", ErrTerminalState, id, n.Status)
	}

	if len(channels) == 0 {
		channels = n.DeliveryChannels
	}
	if len(channels) == 0 {
		channels = []Channel{ChannelInApp}
	}

	return d.settle(ctx, n, d.fanOut(ctx, n, channels))
}

// redeliver is the retry handler: one more attempt on a single channel.
func (d *Dispatcher) redeliver(ctx context.Context, task RetryTask) error {
	n, err := d.load(ctx, task.NotificationID)
	if err != nil {
		return err
	}
	if n.Status.IsTerminal() {
		d.logger.LogAttrs(ctx, slog.LevelDebug, "retry skipped for terminal notification",
			logger.NotificationID(n.ID), logger.Status(string(n.Status)))
		return nil
	}

	_, err = d.settle(ctx, n, d.fanOut(ctx, n, []Channel{task.Channel}))
	return err
}

func (d *Dispatcher) load(ctx context.Context, id string) (Notification, error) {
	n, err := getFresh(ctx, d.store, id)
	if err != nil {
		return Notification{}, err
	}
	if d.gate == nil || !n.IsEncrypted() {
		return n, nil
	}
	plain, err := d.gate.Decrypt(ctx, n)
	if err != nil {
		d.logger.LogAttrs(ctx, slog.LevelWarn, "delivering without decryption",
			logger.NotificationID(id), logger.Error(err))
		return n, nil
	}
	return plain, nil
}

func (d *Dispatcher) fanOut(ctx context.Context, n Notification, channels []Channel) []channelOutcome {
	settled := async.Map(ctx, channels, 0, func(ctx context.Context, ch Channel) (Outcome, error) {
		adapter, ok := d.registry.Lookup(ch)
		if !ok {
			return "", deliveryError(n, ch, fmt.Errorf("%w: %s", ErrUnsupportedChannel, ch))
		}
		cctx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()
		return adapter.Deliver(cctx, n.Clone())
	})

	out := make([]channelOutcome, len(channels))
	for i, r := range settled {
		err := r.Err
		var cde *ChannelDeliveryError
		if err != nil && !errors.As(err, &cde) {
			err = deliveryError(n, channels[i], err)
		}
		out[i] = channelOutcome{channel: channels[i], outcome: r.Value, err: err}
	}
	return out
}

func (d *Dispatcher) settle(ctx context.Context, n Notification, outcomes []channelOutcome) (DeliveryReport, error) {
	now := d.clock.Now()
	attempt := n.Attempts + 1
	report := DeliveryReport{NotificationID: n.ID, Channels: make([]ChannelReport, 0, len(outcomes))}
	results := make([]DeliveryResult, 0, len(outcomes))
	confirmed := false
	var retryable []int

	for _, o := range outcomes {
		res := DeliveryResult{Channel: o.channel, Attempt: attempt}
		cr := ChannelReport{Channel: o.channel}
		if o.err == nil {
			res.Status = DeliverySent
			if o.outcome == OutcomeConfirmed {
				res.Status = DeliveryDelivered
				confirmed = true
			}
			delivered := now
			res.DeliveredAt = &delivered
			cr.Success, cr.Outcome = true, o.outcome
			report.Successful++
		} else {
			res.Status = DeliveryFailed
			res.Error = o.err.Error()
			cr.Error = o.err.Error()
			cr.Retryable = IsRetryable(o.err)
			if cr.Retryable {
				retryable = append(retryable, len(report.Channels))
			}
			report.Failed++
			d.logger.LogAttrs(ctx, slog.LevelWarn, "channel delivery failed",
				logger.NotificationID(n.ID),
				logger.Channel(string(o.channel)),
				logger.RetryCount(n.Attempts),
				logger.Error(o.err),
			)
		}
		results = append(results, res)
		report.Channels = append(report.Channels, cr)
	}

	// Status may have moved while adapters were running.
	cur, err := getFresh(ctx, d.store, n.ID)
	if err != nil {
		return report, err
	}
	cur.DeliveryResults = append(cur.DeliveryResults, results...)

	changed := false
	if report.Successful == 0 {
		scheduled := false
		for _, idx := range retryable {
			ch := report.Channels[idx].Channel
			ok, err := d.retries.ScheduleRetry(ctx, n.ID, ch)
			if err != nil {
				d.logger.LogAttrs(ctx, slog.LevelError, "failed to schedule retry",
					logger.NotificationID(n.ID), logger.Channel(string(ch)), logger.Error(err))
				continue
			}
			report.Channels[idx].RetryScheduled = ok
			scheduled = scheduled || ok
		}
		if !scheduled && d.retries.Pending(n.ID) == 0 {
			changed = d.transition(ctx, &cur, EventFail, now)
		}
	} else {
		if cur.Status == StatusPending {
			changed = d.transition(ctx, &cur, EventDispatch, now)
		}
		if confirmed && cur.Status == StatusSent {
			changed = d.transition(ctx, &cur, EventConfirm, now) || changed
		}
	}

	update := StatusUpdate{Results: results, At: now}
	if changed {
		update.Status = cur.Status
	}
	stored, err := d.store.UpdateStatus(ctx, n.ID, update)
	if err != nil {
		return report, err
	}
	report.Status = stored.Status
	return report, nil
}

func (d *Dispatcher) transition(ctx context.Context, n *Notification, event Event, now time.Time) bool {
	from, err := ApplyEvent(ctx, n, event, now)
	if err != nil {
		d.logger.LogAttrs(ctx, slog.LevelDebug, "lifecycle event ignored",
			logger.NotificationID(n.ID),
			logger.Event(string(event)),
			logger.Status(string(from)),
			logger.Error(err),
		)
		return false
	}
	d.logger.LogAttrs(ctx, slog.LevelInfo, "notification status changed",
		logger.NotificationID(n.ID),
		logger.Transition(string(from), string(n.Status), string(event)),
	)
	return true
}
