package forecast

import (
	"fmt"
	"strings"
)

// Options selects which adapters DefaultRegistry builds
type Options struct {
	SeasonalPeriod       int
	EnableSequenceModels bool
	Seed                 uint64

	// Models restricts the tournament to these adapter names. Empty means all.
	Models []string
}

// DefaultOptions returns the production defaults
func DefaultOptions() Options {
	return Options{
		SeasonalPeriod:       12,
		EnableSequenceModels: true,
		Seed:                 42,
	}
}

// Registry is an ordered set of adapters. Registration order breaks score ties.
type Registry struct {
	adapters []Adapter
	byName   map[string]Adapter
}

// NewRegistry creates a registry holding the given adapters in order
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{byName: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		if err := r.Register(a); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register appends an adapter; names must be unique
func (r *Registry) Register(a Adapter) error {
	if a == nil {
		return fmt.Errorf("nil adapter")
	}
	if _, exists := r.byName[a.Name()]; exists {
		return fmt.Errorf("adapter already registered: %s", a.Name())
	}
	r.adapters = append(r.adapters, a)
	r.byName[a.Name()] = a
	return nil
}

// Adapters returns the adapters in registration order
func (r *Registry) Adapters() []Adapter {
	return append([]Adapter(nil), r.adapters...)
}

// Names returns the adapter names in registration order
func (r *Registry) Names() []string {
	names := make([]string, len(r.adapters))
	for i, a := range r.adapters {
		names[i] = a.Name()
	}
	return names
}

// Lookup finds an adapter by name
func (r *Registry) Lookup(name string) (Adapter, bool) {
	a, ok := r.byName[name]
	return a, ok
}

// Only returns a registry holding the named adapters in this registry's
// order, so tie-breaks are unchanged. Unknown names are an error.
func (r *Registry) Only(names ...string) (*Registry, error) {
	keep := make(map[string]bool, len(names))
	for _, name := range names {
		if _, ok := r.Lookup(name); !ok {
			return nil, fmt.Errorf("unknown model %q (available: %s)", name, strings.Join(r.Names(), ", "))
		}
		keep[name] = true
	}

	var adapters []Adapter
	for _, a := range r.adapters {
		if keep[a.Name()] {
			adapters = append(adapters, a)
		}
	}
	return NewRegistry(adapters...)
}

// Len returns the number of adapters
func (r *Registry) Len() int {
	return len(r.adapters)
}

// DefaultRegistry builds the candidate set in tie-break order
func DefaultRegistry(opts Options) *Registry {
	period := opts.SeasonalPeriod
	if period <= 1 {
		period = 12
	}
	seasonal := SeasonalOrder{P: 1, D: 1, Q: 1, Period: period}

	adapters := []Adapter{
		NewARIMAAdapter(fmt.Sprintf("SARIMA(1,0,1)(1,1,1,%d)", period), FamilySeasonal, Order{P: 1, Q: 1}, seasonal, WhenSeasonal),
		NewARIMAAdapter("ARIMA(1,1,1)", FamilyARIMA, Order{P: 1, D: 1, Q: 1}, SeasonalOrder{}, WhenNonStationary),
		NewARIMAAdapter("AR(1)", FamilyARIMA, Order{P: 1}, SeasonalOrder{}, WhenStationary),
		NewARIMAAdapter("MA(1)", FamilyARIMA, Order{Q: 1}, SeasonalOrder{}, WhenStationary),
		NewARIMAAdapter("ARMA(1,1)", FamilyARIMA, Order{P: 1, Q: 1}, SeasonalOrder{}, WhenStationary),
		NewHoltWintersAdapter(period),
		NewProphetAdapter(period),
	}
	if opts.EnableSequenceModels {
		adapters = append(adapters, NewWindowLinearAdapter(opts.Seed), NewWindowMLPAdapter(opts.Seed))
	}
	adapters = append(adapters,
		NewSARIMAXAdapter("SARIMAX_EXOG", Order{P: 1, D: 1, Q: 1}, seasonal),
		NewVARAdapter(),
		NewVARMAAdapter(),
	)

	r, err := NewRegistry(adapters...)
	if err != nil {
		// names above are distinct
		panic(err)
	}
	if len(opts.Models) == 0 {
		return r
	}
	// Names are checked by ValidateModels when configuration loads
	if only, err := r.Only(opts.Models...); err == nil {
		return only
	}
	return r
}

// ValidateModels reports the first name in opts.Models that DefaultRegistry
// would not build.
func ValidateModels(opts Options) error {
	if len(opts.Models) == 0 {
		return nil
	}
	all := opts
	all.Models = nil
	_, err := DefaultRegistry(all).Only(opts.Models...)
	return err
}
