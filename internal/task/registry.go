package task

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Handler executes one task. The returned value is stored as the task result
// and must be JSON-serializable.
type Handler func(ctx context.Context, p Params) (any, error)

// Registry maps task kinds to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[Kind]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Kind]Handler)}
}

// Register binds fn to the kind of P. P must be one of the params structs
// of this package, used by value.
func Register[P Params](r *Registry, fn func(ctx context.Context, p P) (any, error)) error {
	var zero P
	kind := zero.Kind()

	return r.add(kind, func(ctx context.Context, p Params) (any, error) {
		typed, ok := p.(P)
		if !ok {
			return nil, Invalid(fmt.Errorf("handler for %s received %T", kind, p))
		}
		return fn(ctx, typed)
	})
}

func (r *Registry) add(kind Kind, h Handler) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, kind)
	}
	r.handlers[kind] = h
	return nil
}

// Lookup returns the handler for kind.
func (r *Registry) Lookup(kind Kind) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kinds := make([]Kind, 0, len(r.handlers))
	for k := range r.handlers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
