package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/taskgrid/taskgrid/task"
)

// HandlerFunc is a type-erased task handler that accepts raw JSON
// params. The typed Definition[T] is converted to a HandlerFunc at
// registration time by closing over JSON unmarshal + the typed handler.
type HandlerFunc func(ctx context.Context, t *task.Task, params []byte) (json.RawMessage, error)

// Registry maps task type names to type-erased handler functions.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
	}
}

// RegisterDefinition registers a typed handler definition. The generic
// handler is wrapped in a closure that JSON-unmarshals the params into
// T before calling the typed handler.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterDefinition[T any](r *Registry, def *Definition[T]) {
	handler := func(ctx context.Context, t *task.Task, params []byte) (json.RawMessage, error) {
		var p T
		if len(params) > 0 {
			if err := json.Unmarshal(params, &p); err != nil {
				return nil, fmt.Errorf("unmarshal params for type %q: %w", def.TypeName, err)
			}
		}
		return def.Handler(ctx, t, p)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[def.TypeName] = handler
}

// Get returns the handler for the given type name.
// Returns false if no handler is registered.
func (r *Registry) Get(typeName string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[typeName]
	return h, ok
}

// TypeNames returns all registered task type names.
func (r *Registry) TypeNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
