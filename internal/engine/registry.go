package engine

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/sokuin/internal/config"
)

// Factory opens an engine from configuration.
type Factory func(cfg config.EngineConfig, logger *zap.Logger) (Engine, error)

// Registry maps driver names to factories. It is filled once at startup and then
// only read.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns a registry holding only the null driver.
func NewRegistry() *Registry {
	return &Registry{factories: map[string]Factory{
		NullDriver: func(config.EngineConfig, *zap.Logger) (Engine, error) {
			return NewNull(), nil
		},
	}}
}

// Register adds a factory under name. Registering a name twice is an error.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return fmt.Errorf("register engine driver: name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("register engine driver: %q already registered", name)
	}
	r.factories[name] = f
	return nil
}

// MustRegister is Register for static wiring; it panics on error.
func (r *Registry) MustRegister(name string, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Open resolves cfg.Driver and opens the engine.
func (r *Registry) Open(cfg config.EngineConfig, logger *zap.Logger) (Engine, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Driver]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (have %v)", ErrUnknownDriver, cfg.Driver, r.Drivers())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e, err := f(cfg, logger.With(zap.String("engine", cfg.Driver)))
	if err != nil {
		return nil, Wrap(cfg.Driver, OpOpen, err)
	}
	return e, nil
}

// Drivers returns the registered driver names in sorted order.
func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
