package notifier

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// Observer receives payloads pushed by the notifier.
//
// Receive is called from its own goroutine and should not block for long;
// an error is logged and counted but never retried.
type Observer interface {
	ID() string
	Receive(ctx context.Context, payload *Payload) error
}

// Registry holds the registered observers keyed by id.
type Registry struct {
	mu        sync.RWMutex
	observers map[string]Observer
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		observers: make(map[string]Observer),
	}
}

// Register adds o. Registering an id twice replaces the previous observer.
func (r *Registry) Register(o Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.observers[o.ID()] = o
}

// Deregister removes o and reports whether it was registered.
func (r *Registry) Deregister(o Observer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.observers[o.ID()]; !ok {
		return false
	}

	delete(r.observers, o.ID())

	return true
}

// Observers returns the registered observers ordered by id.
func (r *Registry) Observers() []Observer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Observer, 0, len(r.observers))
	for _, o := range r.observers {
		result = append(result, o)
	}

	slices.SortFunc(result, func(a, b Observer) int {
		return strings.Compare(a.ID(), b.ID())
	})

	return result
}

// Len returns the number of registered observers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.observers)
}
