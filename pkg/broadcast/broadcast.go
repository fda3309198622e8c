package broadcast

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("broadcast: closed")

// Message is one published value.
type Message[T any] struct {
	Topic string `json:"topic"`
	Data  T      `json:"data"`
}

// Subscriber receives messages for one topic.
type Subscriber[T any] interface {
	Receive(ctx context.Context) <-chan Message[T]
	// Close ends the subscription. It is idempotent.
	Close() error
}

// Broadcaster publishes messages to the subscribers of a topic.
type Broadcaster[T any] interface {
	Subscribe(ctx context.Context, topic string) Subscriber[T]
	Publish(ctx context.Context, topic string, data T) error
	// Subscribers reports the live subscribers of topic on this process.
	Subscribers(topic string) int
	Close() error
}

func newSubscriber[T any](topic string, size int, detach func(*subscriber[T])) *subscriber[T] {
	return &subscriber[T]{
		topic:  topic,
		ch:     make(chan Message[T], size),
		quit:   make(chan struct{}),
		detach: detach,
	}
}

type subscriber[T any] struct {
	topic  string
	ch     chan Message[T]
	quit   chan struct{}
	detach func(*subscriber[T])

	mu     sync.RWMutex
	closed bool
}

func (s *subscriber[T]) Receive(context.Context) <-chan Message[T] {
	return s.ch
}

func (s *subscriber[T]) Close() error {
	if s.detach != nil {
		s.detach(s)
	}
	s.shut()
	return nil
}

func (s *subscriber[T]) shut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
		close(s.quit)
	}
}

// offer sends without blocking and reports whether the message was queued.
func (s *subscriber[T]) offer(msg Message[T]) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
