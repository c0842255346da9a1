package kernel

import (
	"sync"

	"github.com/modoterra/linux2rest/pkg/core"
)

// DefaultQueueSize is the per-subscriber outbound queue length.
const DefaultQueueSize = 1024

// Subscriber is a Handle backed by a bounded channel. A subscriber whose
// queue is full is refused further delivery and gets evicted.
type Subscriber struct {
	id      string
	kind    core.EventKind
	events  chan core.LogEntry
	evicted chan struct{}
	once    sync.Once

	// set when eviction was caused by a full queue
	mu      sync.Mutex
	overrun bool
}

// NewSubscriber creates a subscriber with the given queue size.
func NewSubscriber(kind core.EventKind, queueSize int) *Subscriber {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Subscriber{
		kind:    kind,
		events:  make(chan core.LogEntry, queueSize),
		evicted: make(chan struct{}),
	}
}

// ID returns the registry id, empty until subscribed.
func (s *Subscriber) ID() string { return s.id }

// Kind implements Handle.
func (s *Subscriber) Kind() core.EventKind { return s.kind }

// Events is the stream of entries delivered after the snapshot.
func (s *Subscriber) Events() <-chan core.LogEntry { return s.events }

// Evicted is closed once the subscriber has been removed from the registry.
func (s *Subscriber) Evicted() <-chan struct{} { return s.evicted }

// Overrun reports whether the subscriber was dropped for falling behind.
func (s *Subscriber) Overrun() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overrun
}

// Deliver implements Handle.
func (s *Subscriber) Deliver(entry core.LogEntry) bool {
	select {
	case <-s.evicted:
		return false
	default:
	}
	select {
	case s.events <- entry:
		return true
	default:
		s.mu.Lock()
		s.overrun = true
		s.mu.Unlock()
		return false
	}
}

// Evict implements Handle.
func (s *Subscriber) Evict() {
	s.once.Do(func() { close(s.evicted) })
}
