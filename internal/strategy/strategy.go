// Package strategy defines the contract for trading strategies and a
// factory registry for resolving them by name at task start.
package strategy

import (
	"fmt"
	"sort"

	"backlab/internal/domain"
)

// Params holds the tunable parameters passed to a strategy factory,
// typically sourced from the backtest configuration or an optimization
// sweep.
type Params map[string]float64

// Get returns the named parameter or def when absent.
func (p Params) Get(name string, def float64) float64 {
	if p == nil {
		return def
	}
	if v, ok := p[name]; ok {
		return v
	}
	return def
}

// Strategy is the interface all trading strategies implement.
//
// Prepare and GenerateSignals are pure functions of their input: a strategy
// must not carry mutable state between calls beyond internal indicator
// caches. Prepare must discard a warm-up prefix long enough for the
// strategy's slowest indicator to stabilize. GenerateSignals must read
// indicator values from row T-1, never row T; row T's own OHLC is reserved
// for the fill price at execution.
type Strategy interface {
	// Name returns the unique identifier for this strategy.
	Name() string

	// Prepare computes indicators over the raw bars and returns the
	// aligned, warm-up-trimmed row series.
	Prepare(bars []domain.Bar, ticker string, dr domain.DateRange) ([]domain.AlignedRow, error)

	// GenerateSignals emits one SignalFlags per aligned row.
	GenerateSignals(rows []domain.AlignedRow) ([]domain.SignalFlags, error)

	// IndicatorColumns lists the indicator names the signal conditions
	// depend on, consumed by the bias detector.
	IndicatorColumns() []string
}

// Factory builds a strategy instance from parameters.
type Factory func(params Params) (Strategy, error)

// Registry maps strategy names to factories. Strategies are instantiated
// per task, never shared across tasks.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty strategy Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a factory under the given name, replacing any previous
// registration.
func (r *Registry) Register(name string, f Factory) {
	r.factories[name] = f
}

// New instantiates the named strategy with the given parameters.
func (r *Registry) New(name string, params Params) (Strategy, error) {
	f, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("strategy %q not registered", name)
	}
	return f(params)
}

// List returns a sorted slice of all registered strategy names.
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
