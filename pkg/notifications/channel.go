package notifications

import (
	"context"
	"slices"
	"sync"
)

// ChannelAdapter delivers a notification over one channel.
// A nil error means the channel accepted the notification; the Outcome tells
// whether it only handed it off or confirmed delivery.
type ChannelAdapter interface {
	Channel() Channel
	Deliver(ctx context.Context, n Notification) (Outcome, error)
}

// ChannelRegistry maps channels to their adapters.
type ChannelRegistry struct {
	mu       sync.RWMutex
	adapters map[Channel]ChannelAdapter
}

func NewChannelRegistry(adapters ...ChannelAdapter) *ChannelRegistry {
	r := &ChannelRegistry{adapters: make(map[Channel]ChannelAdapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for its channel.
func (r *ChannelRegistry) Register(a ChannelAdapter) {
	if a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Channel()] = a
}

func (r *ChannelRegistry) Lookup(ch Channel) (ChannelAdapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[ch]
	return a, ok
}

// Channels lists registered channels in canonical order.
func (r *ChannelRegistry) Channels() []Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Channel, 0, len(r.adapters))
	for _, ch := range Channels {
		if _, ok := r.adapters[ch]; ok {
			out = append(out, ch)
		}
	}
	for ch := range r.adapters {
		if !slices.Contains(out, ch) {
			out = append(out, ch)
		}
	}
	return out
}

func deliveryError(n Notification, ch Channel, err error) *ChannelDeliveryError {
	return &ChannelDeliveryError{
		Channel:        ch,
		NotificationID: n.ID,
		Retryable:      IsRetryable(err),
		Err:            err,
	}
}
