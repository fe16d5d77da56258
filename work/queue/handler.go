package queue

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// HandlerFunc executes one job type. It receives the sanitized payload —
// the stored payload minus any top-level underscore-prefixed keys — which is
// nil when the job was enqueued without a payload. Handlers must tolerate a
// nil payload.
//
// Context cancellation: the context carries the per-job timeout. A handler
// that ignores it keeps running in the background after the queue has already
// recorded the timeout failure; it cannot be forcibly terminated.
type HandlerFunc func(ctx context.Context, payload map[string]interface{}) error

// Registry maps job type strings to handlers. It is built once at startup
// by the composition root; the set of job types is closed for the lifetime
// of the process.
type Registry struct {
	handlers map[string]HandlerFunc
	mu       sync.RWMutex
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
	}
}

// Register adds a handler for a job type.
// Panics on an empty type or a duplicate registration — both are wiring
// bugs that must fail at startup, not at dispatch time.
func (r *Registry) Register(jobType string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if jobType == "" {
		panic("cannot register handler for empty job type")
	}
	if handler == nil {
		panic(fmt.Sprintf("nil handler for job type: %s", jobType))
	}
	if _, exists := r.handlers[jobType]; exists {
		panic(fmt.Sprintf("handler already registered for job type: %s", jobType))
	}
	r.handlers[jobType] = handler
}

// Get retrieves the handler for a job type.
// Returns nil if no handler is registered.
func (r *Registry) Get(jobType string) HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[jobType]
}

// Has checks if a handler is registered for a job type.
func (r *Registry) Has(jobType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.handlers[jobType]
	return exists
}

// Names returns all registered job types, sorted for stable tooling output.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
