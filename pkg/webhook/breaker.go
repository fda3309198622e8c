package webhook

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// CircuitBreaker opens after a run of consecutive failures and lets traffic
// probe the endpoint again once the cooldown has passed. Successful probes
// close it; a failed probe reopens it.
type CircuitBreaker struct {
	failureThreshold int
	successThreshold int
	cooldown         time.Duration
	clock            clockwork.Clock

	mu        sync.Mutex
	state     CircuitState
	failures  int
	successes int
	openedAt  time.Time
}

type BreakerOption func(*CircuitBreaker)

func WithBreakerClock(c clockwork.Clock) BreakerOption {
	return func(b *CircuitBreaker) {
		if c != nil {
			b.clock = c
		}
	}
}

// NewCircuitBreaker uses 5 failures, 2 successes and 30s for non-positive
// arguments.
func NewCircuitBreaker(failureThreshold, successThreshold int, cooldown time.Duration, opts ...BreakerOption) *CircuitBreaker {
	b := &CircuitBreaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
		clock:            clockwork.NewRealClock(),
		state:            CircuitClosed,
	}
	if b.failureThreshold <= 0 {
		b.failureThreshold = 5
	}
	if b.successThreshold <= 0 {
		b.successThreshold = 2
	}
	if b.cooldown <= 0 {
		b.cooldown = 30 * time.Second
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow returns ErrCircuitOpen while the breaker rejects traffic.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitOpen {
		if b.clock.Since(b.openedAt) < b.cooldown {
			return ErrCircuitOpen
		}
		b.state = CircuitHalfOpen
		b.successes = 0
	}
	return nil
}

func (b *CircuitBreaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = CircuitClosed
			b.failures = 0
		}
	default:
		b.failures = 0
	}
}

func (b *CircuitBreaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == CircuitHalfOpen || b.failures >= b.failureThreshold {
		b.state = CircuitOpen
		b.openedAt = b.clock.Now()
		b.successes = 0
	}
}

func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitOpen && b.clock.Since(b.openedAt) >= b.cooldown {
		return CircuitHalfOpen
	}
	return b.state
}

func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = CircuitClosed
	b.failures = 0
	b.successes = 0
	b.openedAt = time.Time{}
}
