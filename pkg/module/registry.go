package module

import (
	"fmt"
	"sync"
)

// Registry holds the installed modules in registration order.
type Registry struct {
	mu      sync.RWMutex
	modules map[string]Module
	order   []string
}

// NewRegistry creates an empty module registry.
func NewRegistry() *Registry {
	return &Registry{modules: make(map[string]Module)}
}

// Add validates the module's manifest and registers it.
func (r *Registry) Add(m Module) error {
	manifest := m.Manifest()
	if err := manifest.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.modules[manifest.Name]; dup {
		return fmt.Errorf("module %q registered twice", manifest.Name)
	}
	r.modules[manifest.Name] = m
	r.order = append(r.order, manifest.Name)
	return nil
}

// Get returns a module by name.
func (r *Registry) Get(name string) (Module, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.modules[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModule, name)
	}
	return m, nil
}

// All returns modules in registration order.
func (r *Registry) All() []Module {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Module, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.modules[name])
	}
	return out
}
