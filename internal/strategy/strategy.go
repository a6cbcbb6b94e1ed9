// Package strategy defines the Strategy interface for signal generators and
// provides a Registry that builds them by name.
package strategy

import (
	"context"
	"sort"
	"sync"

	"quantapp/internal/domain"
)

// Signals is the output of a strategy: the desired exposure for every bar
// plus any indicator series worth charting, keyed by indicator name.
type Signals struct {
	Exposures  []domain.Exposure             `json:"exposures"`
	Indicators map[string][]domain.NullFloat `json:"indicators,omitempty"`
}

// Strategy is the interface that all signal generators must implement.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Generate computes one signal per bar. It must only look at bars up to
	// and including t when deciding signal t.
	Generate(ctx context.Context, bars []domain.Bar) (*Signals, error)
}

// Params are the tunables a Factory may consume.
type Params struct {
	ShortWindow int `json:"short_window" yaml:"short_window"`
	LongWindow  int `json:"long_window" yaml:"long_window"`
}

// Factory builds a configured Strategy.
type Factory func(p Params) (Strategy, error)

// Registry holds a named collection of strategy factories for lookup and
// enumeration. It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under name, replacing any previous one.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Get retrieves a factory by name. The second return value indicates whether
// the strategy was found.
func (r *Registry) Get(name string) (Factory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.factories[name]
	return f, ok
}

// New builds the named strategy with p. An unknown name is InvalidInput.
func (r *Registry) New(name string, p Params) (Strategy, error) {
	f, ok := r.Get(name)
	if !ok {
		return nil, domain.InvalidInput("strategy", -1, "unknown strategy %q", name)
	}
	return f(p)
}

// List returns a sorted slice of all registered strategy names.
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
