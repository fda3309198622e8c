package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
)

// Hub is an in-memory Broadcaster. It is safe for concurrent use.
type Hub[T any] struct {
	bufferSize int
	dropped    atomic.Uint64

	mu     sync.RWMutex
	topics map[string]map[*subscriber[T]]struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewHub creates a hub whose subscribers buffer up to bufferSize messages.
func NewHub[T any](bufferSize int) *Hub[T] {
	return &Hub[T]{
		bufferSize: max(bufferSize, 1),
		topics:     make(map[string]map[*subscriber[T]]struct{}),
	}
}

func (h *Hub[T]) Subscribe(ctx context.Context, topic string) Subscriber[T] {
	sub := newSubscriber(topic, h.bufferSize, h.detach)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		sub.shut()
		return sub
	}
	set, ok := h.topics[topic]
	if !ok {
		set = make(map[*subscriber[T]]struct{})
		h.topics[topic] = set
	}
	set[sub] = struct{}{}

	if done := ctx.Done(); done != nil {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			select {
			case <-done:
				_ = sub.Close()
			case <-sub.quit:
			}
		}()
	}
	return sub
}

// Publish queues data for every subscriber of topic. Full subscribers miss
// the message.
func (h *Hub[T]) Publish(_ context.Context, topic string, data T) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return ErrClosed
	}
	msg := Message[T]{Topic: topic, Data: data}
	for sub := range h.topics[topic] {
		if !sub.offer(msg) {
			h.dropped.Add(1)
		}
	}
	return nil
}

func (h *Hub[T]) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Topics reports how many topics have live subscribers.
func (h *Hub[T]) Topics() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics)
}

// Dropped reports how many messages were not queued because a subscriber
// buffer was full.
func (h *Hub[T]) Dropped() uint64 {
	return h.dropped.Load()
}

// Close ends every subscription. Later subscriptions are born closed and
// Publish returns ErrClosed.
func (h *Hub[T]) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	topics := h.topics
	h.topics = make(map[string]map[*subscriber[T]]struct{})
	h.mu.Unlock()

	for _, set := range topics {
		for sub := range set {
			sub.shut()
		}
	}
	h.wg.Wait()
	return nil
}

func (h *Hub[T]) detach(sub *subscriber[T]) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.topics[sub.topic]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.topics, sub.topic)
	}
}
