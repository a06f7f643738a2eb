package metrics

import (
	"fmt"
	"sort"
	"sync"
)

// Registry maps metric keys to implementations. Registration normally happens
// at startup; after Freeze the registry is read-only and safe to share.
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]MetricFn
	frozen  bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]MetricFn)}
}

// Register adds fn under key. Empty keys, nil functions and duplicates are errors.
func (r *Registry) Register(key string, fn MetricFn) error {
	if key == "" {
		return fmt.Errorf("metric key cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("metric %q: function cannot be nil", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("cannot register %q: %w", key, ErrRegistryFrozen)
	}
	if _, exists := r.metrics[key]; exists {
		return fmt.Errorf("metric %q already registered", key)
	}
	r.metrics[key] = fn
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(key string, fn MetricFn) {
	if err := r.Register(key, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the metric for key. An unknown key is not an error.
func (r *Registry) Lookup(key string) (MetricFn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.metrics[key]
	return fn, ok
}

// Keys returns the registered keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.metrics))
	for k := range r.metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of registered metrics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.metrics)
}

// Freeze rejects further registration.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze was called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry holding the built-in metrics.
// It is not frozen, so callers may add their own before evaluation starts.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		RegisterBuiltins(defaultRegistry)
	})
	return defaultRegistry
}
