package stream

import (
	"sync"
	"sync/atomic"
)

// Subscriber is one event stream consumer. Events arrive on C(); a
// consumer that falls behind its buffer loses events rather than
// stalling workers, with the loss counted in Dropped().
type Subscriber struct {
	topics  map[Topic]struct{}
	ch      chan Event
	dropped atomic.Int64

	closeOnce sync.Once
	closed    chan struct{}
}

func newSubscriber(buffer int, topics []Topic) *Subscriber {
	if buffer <= 0 {
		buffer = 64
	}
	set := make(map[Topic]struct{}, len(topics))
	for _, t := range topics {
		set[t] = struct{}{}
	}
	return &Subscriber{
		topics: set,
		ch:     make(chan Event, buffer),
		closed: make(chan struct{}),
	}
}

// C returns the receive channel. It is closed when the subscriber or
// broker shuts down.
func (s *Subscriber) C() <-chan Event { return s.ch }

// Dropped returns how many events were lost to a full buffer.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// Close detaches the subscriber. Safe to call more than once.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *Subscriber) wants(topics [3]Topic) bool {
	for _, t := range topics {
		if _, ok := s.topics[t]; ok {
			return true
		}
	}
	return false
}

// deliver offers the event without blocking. Returns false when the
// subscriber is closed.
func (s *Subscriber) deliver(e Event) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.ch <- e:
	default:
		s.dropped.Add(1)
	}
	return true
}
