package engine

import (
	"fmt"
	"log/slog"
	"sort"
)

// Registry maps engine names to their Engine implementations.
// Registration happens at startup before concurrent access, so no mutex is needed.
type Registry struct {
	engines map[string]Engine
	logger  *slog.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		engines: make(map[string]Engine),
		logger:  logger.With("component", "engine-registry"),
	}
}

// Register adds an Engine under name. A later registration under the same
// name replaces the earlier one.
func (r *Registry) Register(name string, e Engine) {
	if _, exists := r.engines[name]; exists {
		r.logger.Warn("engine replaced", "name", name)
	}
	r.engines[name] = e
	r.logger.Info("engine registered", "name", name, "engine", e.Name())
}

// Get returns the Engine registered under name or an error if none is registered.
func (r *Registry) Get(name string) (Engine, error) {
	e, ok := r.engines[name]
	if !ok {
		return nil, fmt.Errorf("no engine registered as %q", name)
	}
	return e, nil
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.engines[name]
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
