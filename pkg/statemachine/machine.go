package statemachine

import (
	"context"
	"sync"
)

// Machine tracks a current state over a Table. It is safe for concurrent use.
type Machine[S, E comparable, D any] struct {
	table   *Table[S, E, D]
	initial S

	mu      sync.RWMutex
	current S
}

func (t *Table[S, E, D]) Machine(initial S) *Machine[S, E, D] {
	return &Machine[S, E, D]{table: t, initial: initial, current: initial}
}

func (m *Machine[S, E, D]) Current() S {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Fire applies event to the current state. The state only changes when
// the transition and all of its actions succeed.
func (m *Machine[S, E, D]) Fire(ctx context.Context, event E, data D) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, err := m.table.Fire(ctx, m.current, event, data)
	if err != nil {
		return err
	}
	m.current = next
	return nil
}

func (m *Machine[S, E, D]) CanFire(ctx context.Context, event E, data D) bool {
	return m.table.CanFire(ctx, m.Current(), event, data)
}

func (m *Machine[S, E, D]) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = m.initial
}
