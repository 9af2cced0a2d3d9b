package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// Handler executes the business logic for one job kind.
type Handler interface {
	Execute(ctx context.Context, payload json.RawMessage) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, payload json.RawMessage) error

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, payload json.RawMessage) error {
	return f(ctx, payload)
}

// Registry maps job kinds to handlers. It is populated once at startup and
// read-only afterwards, so no locking is needed on the dispatch path.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds kind to handler. Registering the same kind twice is a
// programming error and returns an error rather than silently replacing.
func (r *Registry) Register(kind string, handler Handler) error {
	if kind == "" {
		return fmt.Errorf("handler kind is required")
	}
	if handler == nil {
		return fmt.Errorf("handler for kind %q is nil", kind)
	}
	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("handler for kind %q already registered", kind)
	}

	r.handlers[kind] = handler
	return nil
}

// Resolve returns the handler for kind, or false when none is registered.
func (r *Registry) Resolve(kind string) (Handler, bool) {
	h, ok := r.handlers[kind]
	return h, ok
}

// Kinds returns the sorted list of registered kinds. The worker claims
// only these.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}
