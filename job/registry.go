package job

import (
	"fmt"
	"sync"
)

// Registry maps job names to handlers and their default options.
// Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	options  map[string]Options
}

// NewRegistry creates an empty handler registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
		options:  make(map[string]Options),
	}
}

// Register binds a handler and its default options to a job name.
// Registering the same name twice is an error.
func (r *Registry) Register(name string, handler HandlerFunc, opts Options) error {
	if name == "" {
		return fmt.Errorf("job: register: empty name")
	}
	if handler == nil {
		return fmt.Errorf("job: register %q: nil handler", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handlers[name]; exists {
		return fmt.Errorf("job: register %q: already registered", name)
	}
	r.handlers[name] = handler
	r.options[name] = opts
	return nil
}

// Handler returns the handler registered under name.
func (r *Registry) Handler(name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Options returns the default options registered under name.
func (r *Registry) Options(name string) (Options, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.options[name]
	return o, ok
}

// Names returns all registered job names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
