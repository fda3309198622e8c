// Package statemachine provides a typed transition table with guards and
// actions.
//
// A Table is built once and is safe for concurrent use: it holds no current
// state, so it can drive records whose state lives in a database. Machine
// wraps a Table with a current state for in-memory workflows.
//
//	type Light string
//	type Signal string
//
//	table := statemachine.MustTable(
//	    statemachine.Transition[Light, Signal, int]{From: "red", To: "green", Event: "go"},
//	    statemachine.Transition[Light, Signal, int]{
//	        From: "green", To: "red", Event: "stop",
//	        Guards: []statemachine.Guard[Light, Signal, int]{
//	            func(_ context.Context, _ Light, _ Signal, cars int) bool { return cars == 0 },
//	        },
//	    },
//	)
//
//	next, err := table.Fire(ctx, "red", "go", 0) // "green", nil
//
// Transitions for the same state and event are tried in declaration order;
// the first one whose guards all pass wins. Actions run in order before the
// new state is returned and abort the transition on error.
//
// Errors: ErrNoTransition when nothing is declared for the pair,
// ErrTransitionRejected when every candidate was guarded out. Both come
// wrapped in a *TransitionError naming the state and event.
package statemachine
