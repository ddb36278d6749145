// Package registry provides the generic named-component registry the
// tool layer builds on.
package registry

import (
	"fmt"
	"sort"
	"sync"
)

// BaseRegistry is a concurrency-safe map of named components with a
// stable, name-ordered listing.
type BaseRegistry[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

// NewBaseRegistry creates an empty registry.
func NewBaseRegistry[T any]() *BaseRegistry[T] {
	return &BaseRegistry[T]{entries: make(map[string]T)}
}

// Register adds a component under a unique name. Registering a name
// twice is an error; entries are never silently replaced.
func (r *BaseRegistry[T]) Register(name string, entry T) error {
	if name == "" {
		return fmt.Errorf("registry: name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.entries[name]; taken {
		return fmt.Errorf("registry: %q is already registered", name)
	}
	r.entries[name] = entry
	return nil
}

// Get looks a component up by name.
func (r *BaseRegistry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[name]
	return entry, ok
}

// Names returns the registered names, sorted.
func (r *BaseRegistry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List returns the components in name order, so iteration is
// deterministic regardless of registration order.
func (r *BaseRegistry[T]) List() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]T, 0, len(names))
	for _, name := range names {
		entries = append(entries, r.entries[name])
	}
	return entries
}
