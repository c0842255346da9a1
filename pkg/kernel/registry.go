package kernel

import (
	"sync"

	"github.com/google/uuid"

	"github.com/modoterra/linux2rest/pkg/core"
)

// Handle is the outbound side of a connected subscriber.
type Handle interface {
	// Kind is the event stream the handle listens to.
	Kind() core.EventKind

	// Deliver queues an entry without blocking. It returns false when the
	// handle is evicted or cannot accept more entries.
	Deliver(entry core.LogEntry) bool

	// Evict marks the handle dead. It must be safe to call more than once.
	Evict()
}

// Registry tracks connected subscriber handles.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[string]Handle)}
}

// Register adds a handle and returns its id.
func (r *Registry) Register(h Handle) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.handles[id] = h
	r.mu.Unlock()
	return id
}

// Unregister removes and evicts the handle with the given id. It reports
// whether the id was registered; unknown ids are ignored.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	h, ok := r.handles[id]
	delete(r.handles, id)
	r.mu.Unlock()
	if ok {
		h.Evict()
	}
	return ok
}

// Len returns the number of registered handles.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

type target struct {
	id string
	h  Handle
}

// Broadcast delivers entry to every handle registered for kind. Handles
// that refuse delivery are removed and evicted. It returns the ids this
// call removed; handles unregistered concurrently are not reported.
func (r *Registry) Broadcast(kind core.EventKind, entry core.LogEntry) []string {
	r.mu.RLock()
	targets := make([]target, 0, len(r.handles))
	for id, h := range r.handles {
		if h.Kind() == kind {
			targets = append(targets, target{id: id, h: h})
		}
	}
	r.mu.RUnlock()

	var dropped []string
	for _, t := range targets {
		if !t.h.Deliver(entry) && r.Unregister(t.id) {
			dropped = append(dropped, t.id)
		}
	}
	return dropped
}
