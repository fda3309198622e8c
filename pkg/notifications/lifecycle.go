package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrymomot/notifykit/pkg/statemachine"
)

// Event drives a notification through its lifecycle.
type Event string

const (
	EventDispatch Event = "dispatch"
	EventConfirm  Event = "confirm"
	EventFail     Event = "fail"
	EventRead     Event = "read"
	EventDismiss  Event = "dismiss"
	EventExpire   Event = "expire"
)

type transitionInput struct {
	n   *Notification
	now time.Time
}

type (
	lifecycleStep  = statemachine.Transition[Status, Event, *transitionInput]
	lifecycleGuard = statemachine.Guard[Status, Event, *transitionInput]
	lifecycleHook  = statemachine.Action[Status, Event, *transitionInput]
)

// Failing is only allowed while no channel has ever succeeded.
func neverDelivered(_ context.Context, _ Status, _ Event, in *transitionInput) bool {
	return !in.n.HasSuccessfulDelivery()
}

func pastExpiry(_ context.Context, _ Status, _ Event, in *transitionInput) bool {
	return in.n.IsExpired(in.now)
}

func stampRead(_ context.Context, _, _ Status, _ Event, in *transitionInput) error {
	if in.n.ReadAt == nil {
		at := in.now
		in.n.ReadAt = &at
	}
	return nil
}

func stampDismissed(_ context.Context, _, _ Status, _ Event, in *transitionInput) error {
	at := in.now
	in.n.DismissedAt = &at
	return nil
}

var lifecycle = statemachine.MustTable(lifecycleSteps()...)

func lifecycleSteps() []lifecycleStep {
	steps := []lifecycleStep{
		{From: StatusPending, To: StatusSent, Event: EventDispatch},
		{From: StatusPending, To: StatusDelivered, Event: EventConfirm},
		{From: StatusSent, To: StatusDelivered, Event: EventConfirm},
		{From: StatusSent, To: StatusRead, Event: EventRead, Actions: []lifecycleHook{stampRead}},
		{From: StatusDelivered, To: StatusRead, Event: EventRead, Actions: []lifecycleHook{stampRead}},
	}
	for _, from := range []Status{StatusPending, StatusSent, StatusDelivered} {
		steps = append(steps,
			lifecycleStep{From: from, To: StatusDismissed, Event: EventDismiss, Actions: []lifecycleHook{stampDismissed}},
			lifecycleStep{From: from, To: StatusFailed, Event: EventFail, Guards: []lifecycleGuard{neverDelivered}},
			lifecycleStep{From: from, To: StatusExpired, Event: EventExpire, Guards: []lifecycleGuard{pastExpiry}},
		)
	}
	return steps
}

// ApplyEvent advances n through the lifecycle in place and returns the
// status it left. Events on a terminal notification return ErrTerminalState
// and leave n untouched; undefined or guarded-out transitions return
// ErrInvalidTransition.
func ApplyEvent(ctx context.Context, n *Notification, event Event, now time.Time) (Status, error) {
	from := n.Status
	if from == "" {
		from = StatusPending
	}
	if from.IsTerminal() {
		return from, fmt.Errorf("%w: %s on %s", ErrTerminalState, event, from)
	}

	working := n.Clone()
	working.Status = from
	to, err := lifecycle.Fire(ctx, from, event, &transitionInput{n: &working, now: now})
	if err != nil {
		return from, fmt.Errorf("%w: %w", ErrInvalidTransition, err)
	}

	working.Status = to
	working.UpdatedAt = now
	*n = working
	return from, nil
}

// CanApply reports whether event would be accepted for n at now.
func CanApply(ctx context.Context, n Notification, event Event, now time.Time) bool {
	if n.Status == "" {
		n.Status = StatusPending
	}
	if n.Status.IsTerminal() {
		return false
	}
	return lifecycle.CanFire(ctx, n.Status, event, &transitionInput{n: &n, now: now})
}
