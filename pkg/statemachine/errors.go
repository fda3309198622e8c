package statemachine

import (
	"errors"
	"fmt"
)

var (
	ErrNoTransition       = errors.New("statemachine: no transition")
	ErrTransitionRejected = errors.New("statemachine: transition rejected by guards")
	ErrInvalidDefinition  = errors.New("statemachine: invalid transition definition")
)

// TransitionError describes a failed Fire.
type TransitionError struct {
	From  string
	Event string
	Err   error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: %s on %s", e.Err, e.Event, e.From)
}

func (e *TransitionError) Unwrap() error { return e.Err }

func transitionError[S, E comparable](from S, event E, err error) error {
	return &TransitionError{From: fmt.Sprint(from), Event: fmt.Sprint(event), Err: err}
}
