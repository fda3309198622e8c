package webhook_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/notifykit/pkg/webhook"
)

func TestExponentialBackoff(t *testing.T) {
	t.Parallel()

	b := webhook.ExponentialBackoff{
		InitialInterval: time.Second,
		MaxInterval:     10 * time.Second,
		Multiplier:      2,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 0},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 10 * time.Second},
		{60, 10 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, b.NextInterval(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoff_Edges(t *testing.T) {
	t.Parallel()

	t.Run("multiplier below one is flat", func(t *testing.T) {
		t.Parallel()
		b := webhook.ExponentialBackoff{InitialInterval: time.Second, Multiplier: 0.5}
		assert.Equal(t, time.Second, b.NextInterval(4))
	})

	t.Run("uncapped growth saturates", func(t *testing.T) {
		t.Parallel()
		b := webhook.ExponentialBackoff{InitialInterval: time.Hour, Multiplier: 10}
		assert.Positive(t, b.NextInterval(40))
	})

	t.Run("jitter stays in range", func(t *testing.T) {
		t.Parallel()
		b := webhook.ExponentialBackoff{InitialInterval: time.Second, Multiplier: 2, JitterFactor: 0.2}
		for range 100 {
			d := b.NextInterval(2)
			assert.GreaterOrEqual(t, d, 1600*time.Millisecond)
			assert.LessOrEqual(t, d, 2400*time.Millisecond)
		}
	})
}

func TestConstantBackoff(t *testing.T) {
	t.Parallel()

	b := webhook.ConstantBackoff(250 * time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, b.NextInterval(1))
	assert.Equal(t, 250*time.Millisecond, b.NextInterval(9))
}
