package statemachine

import (
	"context"
	"fmt"
	"slices"
)

// Guard decides whether a transition may run.
type Guard[S, E comparable, D any] func(ctx context.Context, from S, event E, data D) bool

// Action runs as part of a transition, before the new state is reported.
type Action[S, E comparable, D any] func(ctx context.Context, from, to S, event E, data D) error

// Transition declares that Event moves From to To when all Guards pass.
type Transition[S, E comparable, D any] struct {
	From    S
	To      S
	Event   E
	Guards  []Guard[S, E, D]
	Actions []Action[S, E, D]
}

type key[S, E comparable] struct {
	from  S
	event E
}

// Table is an immutable set of transitions.
type Table[S, E comparable, D any] struct {
	byKey map[key[S, E]][]Transition[S, E, D]
	order []key[S, E]
}

func NewTable[S, E comparable, D any](defs ...Transition[S, E, D]) (*Table[S, E, D], error) {
	var zeroS S
	var zeroE E

	t := &Table[S, E, D]{byKey: make(map[key[S, E]][]Transition[S, E, D], len(defs))}
	for i, def := range defs {
		if def.From == zeroS || def.To == zeroS || def.Event == zeroE {
			return nil, fmt.Errorf("%w: transition[%d] %v->%v on %v", ErrInvalidDefinition, i, def.From, def.To, def.Event)
		}
		k := key[S, E]{from: def.From, event: def.Event}
		if _, ok := t.byKey[k]; !ok {
			t.order = append(t.order, k)
		}
		def.Guards = slices.Clone(def.Guards)
		def.Actions = slices.Clone(def.Actions)
		t.byKey[k] = append(t.byKey[k], def)
	}
	return t, nil
}

// MustTable is NewTable for package-level tables. It panics on an invalid
// definition.
func MustTable[S, E comparable, D any](defs ...Transition[S, E, D]) *Table[S, E, D] {
	t, err := NewTable(defs...)
	if err != nil {
		panic(err)
	}
	return t
}

// Fire runs the first eligible transition for event in state from and
// returns the resulting state. On error the returned state is from.
func (t *Table[S, E, D]) Fire(ctx context.Context, from S, event E, data D) (S, error) {
	tr, err := t.pick(ctx, from, event, data)
	if err != nil {
		return from, err
	}
	for _, act := range tr.Actions {
		if err := act(ctx, from, tr.To, event, data); err != nil {
			return from, fmt.Errorf("%v on %v: action failed: %w", event, from, err)
		}
	}
	return tr.To, nil
}

// CanFire reports whether Fire would find an eligible transition. Actions
// are not run.
func (t *Table[S, E, D]) CanFire(ctx context.Context, from S, event E, data D) bool {
	_, err := t.pick(ctx, from, event, data)
	return err == nil
}

// Events lists the events declared for state from, in declaration order.
// Guards are not evaluated.
func (t *Table[S, E, D]) Events(from S) []E {
	var events []E
	for _, k := range t.order {
		if k.from == from {
			events = append(events, k.event)
		}
	}
	return events
}

func (t *Table[S, E, D]) pick(ctx context.Context, from S, event E, data D) (Transition[S, E, D], error) {
	candidates := t.byKey[key[S, E]{from: from, event: event}]
	if len(candidates) == 0 {
		return Transition[S, E, D]{}, transitionError(from, event, ErrNoTransition)
	}
	for _, tr := range candidates {
		if allow(ctx, tr.Guards, from, event, data) {
			return tr, nil
		}
	}
	return Transition[S, E, D]{}, transitionError(from, event, ErrTransitionRejected)
}

func allow[S, E comparable, D any](ctx context.Context, guards []Guard[S, E, D], from S, event E, data D) bool {
	for _, g := range guards {
		if g != nil && !g(ctx, from, event, data) {
			return false
		}
	}
	return true
}
