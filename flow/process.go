package flow

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Process is a unit of work executed by a node.
//
// A process reads and writes fields of the run context. Returning an error
// aborts the run; the engine never retries. Retries, if needed, belong inside
// the process itself.
//
// Type parameter C is the run context type shared across the flow.
type Process[C any] interface {
	Execute(ctx context.Context, rc C) error
}

// ProcessFunc is a function adapter that implements the Process interface.
//
// Example:
//
//	discount := flow.ProcessFunc[*Sale](func(ctx context.Context, s *Sale) error {
//	    s.Total -= s.Discount
//	    return nil
//	})
type ProcessFunc[C any] func(ctx context.Context, rc C) error

// Execute implements the Process interface for ProcessFunc.
func (f ProcessFunc[C]) Execute(ctx context.Context, rc C) error {
	return f(ctx, rc)
}

// Factory resolves a process instance for a key.
//
// The engine calls Resolve once per node per run, before traversal starts.
// Implementations must return a fresh instance when processes keep state,
// because instances are never shared between nodes or runs.
type Factory[C any] interface {
	Resolve(key ProcessKey) (Process[C], error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc[C any] func(key ProcessKey) (Process[C], error)

// Resolve implements Factory.
func (f FactoryFunc[C]) Resolve(key ProcessKey) (Process[C], error) {
	return f(key)
}

// Registry is a Factory backed by a map of constructors.
//
// Registry is safe for concurrent use. Register all processes at startup,
// typically from Graph.ProcessKeys, and share the registry between engines.
type Registry[C any] struct {
	mu        sync.RWMutex
	factories map[ProcessKey]func() Process[C]
}

// NewRegistry creates an empty registry.
func NewRegistry[C any]() *Registry[C] {
	return &Registry[C]{
		factories: make(map[ProcessKey]func() Process[C]),
	}
}

// Register adds a constructor for key. Registering a key twice is an error.
func (r *Registry[C]) Register(key ProcessKey, factory func() Process[C]) error {
	if key == "" {
		return &ConfigError{Code: "EMPTY_PROCESS", Message: "process key cannot be empty"}
	}
	if factory == nil {
		return fmt.Errorf("register %q: factory cannot be nil", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[key]; exists {
		return fmt.Errorf("register %q: process already registered", key)
	}
	r.factories[key] = factory
	return nil
}

// MustRegister is like Register but panics on error.
// It is intended for package-level registration.
func (r *Registry[C]) MustRegister(key ProcessKey, factory func() Process[C]) {
	if err := r.Register(key, factory); err != nil {
		panic(err)
	}
}

// Resolve implements Factory. Each call returns a new instance.
func (r *Registry[C]) Resolve(key ProcessKey) (Process[C], error) {
	r.mu.RLock()
	factory, ok := r.factories[key]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProcess, key)
	}
	p := factory()
	if p == nil {
		return nil, fmt.Errorf("process %q: factory returned nil", key)
	}
	return p, nil
}

// Keys returns the registered keys in sorted order.
func (r *Registry[C]) Keys() []ProcessKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]ProcessKey, 0, len(r.factories))
	for k := range r.factories {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Missing returns the keys that have no registered constructor.
func (r *Registry[C]) Missing(keys []ProcessKey) []ProcessKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var missing []ProcessKey
	for _, k := range keys {
		if _, ok := r.factories[k]; !ok {
			missing = append(missing, k)
		}
	}
	return missing
}

// RegisterType registers a constructor under KeyOf[P]().
//
// Example:
//
//	flow.RegisterType(reg, func() *StateTaxProcess { return &StateTaxProcess{Rate: 0.07} })
func RegisterType[C any, P Process[C]](r *Registry[C], factory func() P) error {
	return r.Register(KeyOf[P](), func() Process[C] { return factory() })
}
