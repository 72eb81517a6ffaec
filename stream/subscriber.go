package stream

import (
	"sync"
	"sync/atomic"
)

// Subscriber receives events from the topics it is on.
//
// Delivery never blocks the publisher. A non-terminal event is dropped
// when the subscriber has no credits left or its buffer is full; Dropped
// counts those losses so a watcher can detect gaps. Terminal events skip
// the credit check and evict the oldest buffered events to make room.
type Subscriber struct {
	id string
	ch chan *Event

	credits atomic.Int64
	dropped atomic.Int64

	mu     sync.RWMutex
	topics map[string]struct{}

	filter func(*Event) bool

	closeMu sync.RWMutex
	closed  bool
}

// NewSubscriber creates a subscriber with the given buffer size and
// initial credits. The buffer holds at least one event.
func NewSubscriber(id string, bufferSize int, initialCredits int64) *Subscriber {
	bufferSize = max(bufferSize, 1)
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

// C returns the event channel. It is closed when the subscriber is
// removed or the broker shuts down.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// AddCredits replenishes flow-control credits.
func (s *Subscriber) AddCredits(n int64) { s.credits.Add(n) }

// Credits returns the current credit count.
func (s *Subscriber) Credits() int64 { return s.credits.Load() }

// Dropped returns the number of events that could not be delivered.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// SetFilter installs a predicate; only matching events are delivered.
// Call before the subscriber is registered on any topic.
func (s *Subscriber) SetFilter(fn func(*Event) bool) { s.filter = fn }

func (s *Subscriber) addTopic(topic string) {
	s.mu.Lock()
	s.topics[topic] = struct{}{}
	s.mu.Unlock()
}

func (s *Subscriber) removeTopic(topic string) {
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
}

// Topics returns a copy of all subscribed topic names.
func (s *Subscriber) Topics() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.topics))
	for t := range s.topics {
		out = append(out, t)
	}
	return out
}

// send attempts a non-blocking delivery.
func (s *Subscriber) send(evt *Event) bool {
	if s.filter != nil && !s.filter(evt) {
		return false
	}

	// The read lock keeps Close from closing ch mid-send.
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return false
	}
	if evt.Terminal() {
		return s.sendTerminal(evt)
	}

	for {
		current := s.credits.Load()
		if current <= 0 {
			s.dropped.Add(1)
			return false
		}
		if s.credits.CompareAndSwap(current, current-1) {
			break
		}
	}

	select {
	case s.ch <- evt:
		return true
	default:
		s.credits.Add(1)
		s.dropped.Add(1)
		return false
	}
}

// sendTerminal queues evt, discarding the oldest buffered events while the
// buffer is full. Must be called with closeMu held.
func (s *Subscriber) sendTerminal(evt *Event) bool {
	for range cap(s.ch) + 1 {
		select {
		case s.ch <- evt:
			return true
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
	s.dropped.Add(1)
	return false
}

// Close closes the event channel. Safe to call multiple times.
func (s *Subscriber) Close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
