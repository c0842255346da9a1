package kernel

import (
	"log/slog"
	"sync"
	"time"

	"github.com/modoterra/linux2rest/pkg/core"
)

// Service owns the kernel log store and the subscriber registry. It is
// constructed once per process and shared by the reader and every
// consumer.
type Service struct {
	// commit serializes store mutation with its broadcast, and snapshot
	// with registration, so a new subscriber neither misses nor repeats
	// an entry.
	commit sync.Mutex

	store     *Store
	registry  *Registry
	queueSize int
	logger    *slog.Logger
	started   time.Time
}

// NewService creates a service. queueSize bounds each subscriber's queue.
func NewService(queueSize int, logger *slog.Logger) *Service {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Service{
		store:     NewStore(),
		registry:  NewRegistry(),
		queueSize: queueSize,
		logger:    logger,
		started:   time.Now(),
	}
}

// Append stores a finalized entry and broadcasts it.
func (s *Service) Append(entry core.LogEntry) {
	s.commit.Lock()
	defer s.commit.Unlock()

	s.store.Append(entry)
	s.broadcast(entry)
}

// Continue appends a continuation line to the last stored entry and
// broadcasts the updated entry. It reports false when the store is empty.
func (s *Service) Continue(text string) (core.LogEntry, bool) {
	s.commit.Lock()
	defer s.commit.Unlock()

	updated, ok := s.store.UpdateLast(func(e *core.LogEntry) {
		e.Message += "\n" + text
	})
	if !ok {
		return core.LogEntry{}, false
	}
	s.broadcast(updated)
	return updated, true
}

func (s *Service) broadcast(entry core.LogEntry) {
	for _, id := range s.registry.Broadcast(core.EventKernelBuffer, entry) {
		s.logger.Warn("subscriber dropped", "id", id, "seq", entry.SequenceNumber)
	}
}

// Read returns a paginated copy of the store (see Store.Read).
func (s *Service) Read(start, size int) []core.LogEntry {
	return s.store.Read(start, size)
}

// Len returns the number of stored entries.
func (s *Service) Len() int {
	return s.store.Len()
}

// Subscribe captures the current snapshot and registers a new subscriber
// atomically with respect to Append and Continue.
func (s *Service) Subscribe() ([]core.LogEntry, *Subscriber) {
	sub := NewSubscriber(core.EventKernelBuffer, s.queueSize)

	s.commit.Lock()
	snapshot := s.store.Read(0, -1)
	sub.id = s.registry.Register(sub)
	s.commit.Unlock()

	s.logger.Debug("subscriber registered", "id", sub.id, "snapshot", len(snapshot))
	return snapshot, sub
}

// Unsubscribe removes a subscriber. Calling it more than once is a no-op.
func (s *Service) Unsubscribe(sub *Subscriber) {
	if sub == nil || sub.id == "" {
		return
	}
	if s.registry.Unregister(sub.id) {
		s.logger.Debug("subscriber removed", "id", sub.id)
	}
}

// Subscribers returns the number of registered subscribers.
func (s *Service) Subscribers() int {
	return s.registry.Len()
}

// Uptime returns how long the service has existed.
func (s *Service) Uptime() time.Duration {
	return time.Since(s.started)
}
