package strategy

import "sort"

// Registry holds the ordered set of strategies the Orchestrator dispatches
// to. Per §9 Design Notes ("Reflection/introspection for strategy
// registration"), it accepts concrete values implementing Strategy and
// sorts once at registration time rather than re-sorting per request.
type Registry struct {
	strategies []Strategy
}

// NewRegistry constructs a Registry from an initial set of strategies,
// already sorted by descending priority.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{}
	for _, s := range strategies {
		r.Add(s)
	}
	return r
}

// Add registers s and re-sorts the registry by descending priority. Ties
// are broken by registration order (sort.SliceStable).
func (r *Registry) Add(s Strategy) {
	r.strategies = append(r.strategies, s)
	sort.SliceStable(r.strategies, func(i, j int) bool {
		return r.strategies[i].Priority() > r.strategies[j].Priority()
	})
}

// Strategies returns the registered strategies in dispatch order. The
// returned slice must not be mutated by callers.
func (r *Registry) Strategies() []Strategy {
	return r.strategies
}
