package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

var ErrUnknownBackend = errors.New("storage: unknown backend type")

// Deps are shared resources handed to every factory.
type Deps struct {
	Logger *zap.Logger
	// Registry builds child backends for composite types. Create fills it in.
	Registry *Registry
	// Metrics receives counters for blocks with "metrics: true". Optional.
	Metrics prometheus.Registerer
}

// Factory builds a backend from its configuration block.
type Factory func(cfg Config, deps Deps) (Backend, error)

// Registry maps backend type names to factories. It is populated once during
// startup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under name.
func (r *Registry) Register(name string, factory Factory) error {
	name = strings.TrimSpace(name)
	if name == "" || factory == nil {
		return errors.New("storage: invalid backend registration")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("storage: backend %q already registered", name)
	}
	r.factories[name] = factory
	return nil
}

// Create builds the backend named by the block's "type" key.
func (r *Registry) Create(cfg Config, deps Deps) (Backend, error) {
	name := cfg.Type()
	if name == "" {
		return nil, fmt.Errorf("%w: missing type", ErrUnknownBackend)
	}

	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownBackend, name, strings.Join(r.List(), ", "))
	}

	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Registry == nil {
		deps.Registry = r
	}

	backend, err := factory(cfg, deps)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to create %s backend: %w", name, err)
	}

	instrument, err := cfg.BoolValue("metrics", false)
	if err != nil {
		backend.Close()
		return nil, err
	}
	if instrument && deps.Metrics != nil {
		wrapped, err := Instrument(backend, cfg.StringValue("name", name), deps.Metrics)
		if err != nil {
			backend.Close()
			return nil, err
		}
		backend = wrapped
	}
	return backend, nil
}

// List returns registered type names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
