package stream

import (
	"sync"
	"sync/atomic"
)

// Subscriber is one consumer of lifecycle events. Delivery is lossy by
// design: each subscriber carries a credit balance, and an event is only
// delivered while credits remain and the channel buffer has room. A slow
// consumer drops events instead of stalling the publisher.
type Subscriber struct {
	id string
	ch chan *Event

	// credits is the remaining flow-control balance. Delivery decrements
	// it; consumers call AddCredits to replenish.
	credits atomic.Int64

	// filter, when set, must return true for an event to be delivered.
	filter func(*Event) bool

	mu     sync.RWMutex
	topics map[string]struct{}

	closed atomic.Bool
}

// NewSubscriber creates a subscriber with the given channel buffer size
// and initial credit balance.
func NewSubscriber(id string, bufferSize int, initialCredits int64) *Subscriber {
	s := &Subscriber{
		id:     id,
		ch:     make(chan *Event, bufferSize),
		topics: make(map[string]struct{}),
	}
	s.credits.Store(initialCredits)
	return s
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the channel lifecycle events arrive on. The channel is
// closed when the subscriber is removed or the broker shuts down.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// AddCredits replenishes the flow-control balance.
func (s *Subscriber) AddCredits(n int64) { s.credits.Add(n) }

// Credits returns the current credit balance.
func (s *Subscriber) Credits() int64 { return s.credits.Load() }

// SetFilter installs a delivery predicate. Events failing the predicate
// are skipped without consuming a credit.
func (s *Subscriber) SetFilter(fn func(*Event) bool) { s.filter = fn }

// Topics returns the names of all topics this subscriber is on.
func (s *Subscriber) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.topics))
	for name := range s.topics {
		out = append(out, name)
	}
	return out
}

func (s *Subscriber) addTopic(name string) {
	s.mu.Lock()
	s.topics[name] = struct{}{}
	s.mu.Unlock()
}

func (s *Subscriber) removeTopic(name string) {
	s.mu.Lock()
	delete(s.topics, name)
	s.mu.Unlock()
}

// takeCredit atomically decrements the balance. Returns false when no
// credits remain.
func (s *Subscriber) takeCredit() bool {
	for {
		cur := s.credits.Load()
		if cur <= 0 {
			return false
		}
		if s.credits.CompareAndSwap(cur, cur-1) {
			return true
		}
	}
}

// send attempts to deliver an event. Returns false when the event was
// dropped: subscriber closed, filter mismatch, no credits, or full buffer.
func (s *Subscriber) send(evt *Event) bool {
	if s.closed.Load() {
		return false
	}
	if s.filter != nil && !s.filter(evt) {
		return false
	}
	if !s.takeCredit() {
		return false
	}

	select {
	case s.ch <- evt:
		return true
	default:
		// Buffer full: refund the credit and drop.
		s.credits.Add(1)
		return false
	}
}

// Close closes the event channel. Safe to call more than once.
func (s *Subscriber) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.ch)
	}
}
