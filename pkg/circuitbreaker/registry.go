package circuitbreaker

import (
	"context"
	"sync"

	"github.com/opencode-ai/controlplane/internal/hooks"
	"github.com/opencode-ai/controlplane/internal/telemetry"
)

// Registry memoizes breakers by name so callers anywhere in the process
// share the same Breaker instance for a given resource (§4.4 "A breaker is
// per-resource"; §9 Design Notes: pass registries as explicit dependencies
// rather than a global mutable map).
type Registry struct {
	bus    hooks.Bus
	logger telemetry.Logger

	mu       sync.Mutex
	breakers map[string]*Breaker
	defaults Settings
}

// NewRegistry constructs an empty Registry. defaults supplies the
// thresholds applied to breakers created via Get when the caller doesn't
// override them in opts.
func NewRegistry(defaults Settings, bus hooks.Bus, logger telemetry.Logger) *Registry {
	return &Registry{
		bus:      bus,
		logger:   logger,
		breakers: make(map[string]*Breaker),
		defaults: defaults,
	}
}

// Get returns the breaker for name, creating it with opts (falling back to
// the registry defaults for zero-valued fields) on first use. Subsequent
// calls with the same name return the same instance regardless of opts.
func (r *Registry) Get(name string, opts Settings) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}

	merged := r.defaults
	merged.Name = name
	if opts.FailureThreshold > 0 {
		merged.FailureThreshold = opts.FailureThreshold
	}
	if opts.SuccessThreshold > 0 {
		merged.SuccessThreshold = opts.SuccessThreshold
	}
	if opts.Timeout > 0 {
		merged.Timeout = opts.Timeout
	}
	if opts.Clock != nil {
		merged.Clock = opts.Clock
	}

	b := NewBreaker(merged, r.bus, r.logger)
	r.breakers[name] = b
	return b
}

// ResetAll forces every registered breaker to CLOSED, clearing counters.
func (r *Registry) ResetAll(ctx context.Context) {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	for _, b := range breakers {
		b.reset(ctx)
	}
}

// Summary returns the number of registered breakers in each state.
func (r *Registry) Summary() map[State]int {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	out := map[State]int{Closed: 0, HalfOpen: 0, Open: 0}
	for _, b := range breakers {
		out[b.State()]++
	}
	return out
}

// defaultRegistry is the process-wide convenience instance. Library code
// must not write through it (§9 Design Notes: "expose a single Default
// accessor for convenience but forbid writes through it in library code");
// only top-level command wiring should call Default().
var defaultRegistry = NewRegistry(Settings{}, nil, telemetry.NewNoopLogger())

// Default returns the process-wide convenience Registry. Application
// entry points may use this directly; reusable library/component code
// should instead accept a *Registry as an explicit dependency.
func Default() *Registry { return defaultRegistry }
