package webhook

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes the wait before retry number attempt (1-based).
type Backoff interface {
	NextInterval(attempt int) time.Duration
}

// ExponentialBackoff waits InitialInterval * Multiplier^(attempt-1), capped at
// MaxInterval, spread by up to ±JitterFactor of the value.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

func (b ExponentialBackoff) NextInterval(attempt int) time.Duration {
	if attempt < 1 || b.InitialInterval <= 0 {
		return 0
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(b.InitialInterval) * math.Pow(mult, float64(attempt-1))
	if b.MaxInterval > 0 && d > float64(b.MaxInterval) {
		d = float64(b.MaxInterval)
	}
	if b.JitterFactor > 0 {
		d += d * b.JitterFactor * (2*rand.Float64() - 1)
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// ConstantBackoff waits the same interval before every retry.
type ConstantBackoff time.Duration

func (b ConstantBackoff) NextInterval(int) time.Duration { return time.Duration(b) }

func defaultBackoff() Backoff {
	return ExponentialBackoff{
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
		JitterFactor:    0.1,
	}
}
