package kernel

import (
	"sync"

	"github.com/modoterra/linux2rest/pkg/core"
)

// Store is the append-only, ordered sequence of kernel log entries.
// It is unbounded for the life of the process.
type Store struct {
	mu      sync.Mutex
	entries []core.LogEntry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Append adds an entry to the end of the store.
func (s *Store) Append(entry core.LogEntry) {
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Read returns a copy of entries [start, start+size), clipped to the
// available range. A negative size means all entries from start.
// An out-of-range start yields an empty slice.
func (s *Store) Read(start, size int) []core.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	if start < 0 {
		start = 0
	}
	if start >= n || size == 0 {
		return []core.LogEntry{}
	}
	end := n
	if size > 0 && size < n-start {
		end = start + size
	}
	out := make([]core.LogEntry, end-start)
	copy(out, s.entries[start:end])
	return out
}

// UpdateLast applies fn to the most recent entry and returns the updated
// copy. It reports false when the store is empty.
func (s *Store) UpdateLast(fn func(*core.LogEntry)) (core.LogEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return core.LogEntry{}, false
	}
	last := &s.entries[len(s.entries)-1]
	fn(last)
	return *last, true
}
