package strategy

import (
	"context"
	"math/rand"
	"time"

	"github.com/opencode-ai/controlplane/internal/hooks"
	"github.com/opencode-ai/controlplane/internal/telemetry"
)

// Orchestrator evaluates an ordered list of selection strategies to
// produce a single model selection while isolating failing strategies
// (§4.3).
type Orchestrator struct {
	registry *Registry
	health   *HealthTracker
	bus      hooks.Bus
	logger   telemetry.Logger
	clock    func() time.Time

	rand *rand.Rand // non-nil only in deterministic replay mode (§5)
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithReplaySeed enables deterministic mode when seed is non-empty,
// seeding the orchestrator's PRNG from it (§4.3 "Determinism and replay").
func WithReplaySeed(seed string) Option {
	return func(o *Orchestrator) {
		if seed != "" {
			o.rand = seededRand(seed)
		}
	}
}

// WithClock overrides the orchestrator's time source; defaults to
// time.Now. Tests inject a fake clock to exercise bypass cooldowns.
func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// NewOrchestrator constructs an Orchestrator over registry, persisting
// strategy health via health.
func NewOrchestrator(registry *Registry, health *HealthTracker, bus hooks.Bus, logger telemetry.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	o := &Orchestrator{
		registry: registry,
		health:   health,
		bus:      bus,
		logger:   logger,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Rand returns the orchestrator's deterministic PRNG when replay mode is
// enabled, or nil otherwise. Strategies that need randomness should prefer
// this source over math/rand's global generator so that §8 invariant 7
// ("byte-identical sequences... under OPENCODE_REPLAY_SEED") holds.
func (o *Orchestrator) Rand() *rand.Rand { return o.rand }

// Select runs the §4.3 algorithm: iterate strategies in descending
// priority, skipping bypassed strategies and those whose ShouldApply
// returns false; the first non-nil Selection wins; a Strategy that errors
// is recorded as a failure and orchestration continues; if every strategy
// is exhausted, a sentinel "strategy:none" Selection is returned.
func (o *Orchestrator) Select(ctx context.Context, task Task, rctx RoutingContext) Selection {
	now := o.clock()

	for _, s := range o.registry.Strategies() {
		if o.health != nil && o.health.Bypassed(s.Name(), now) {
			continue
		}
		if !s.ShouldApply(ctx, task, rctx) {
			continue
		}

		sel, err := o.safeSelect(ctx, s, task, rctx)
		if err != nil {
			o.logger.Warn(ctx, "strategy failed", "strategy", s.Name(), "error", err)
			if o.health != nil {
				o.health.RecordFailure(ctx, s.Name())
				if o.health.Snapshot(s.Name()).ConsecutiveFailures >= o.health.failureThreshold {
					o.publishBypass(ctx, s.Name())
				}
			}
			continue
		}
		if sel == nil {
			continue
		}

		if o.health != nil {
			o.health.RecordSuccess(ctx, s.Name())
		}
		if sel.Strategy == "" {
			sel.Strategy = s.Name()
		}
		if sel.Reason == "" {
			sel.Reason = BuildReason(s.Name(), nil, nil, nil)
		}
		o.publishSelected(ctx, *sel)
		return *sel
	}

	return Selection{Strategy: "none", Reason: NoneReason}
}

// safeSelect invokes s.SelectModel, converting a panic into an error so a
// misbehaving strategy can never crash the orchestrator (§4.3: "a strategy
// that throws is recorded as a failure").
func (o *Orchestrator) safeSelect(ctx context.Context, s Strategy, task Task, rctx RoutingContext) (sel *Selection, err error) {
	defer func() {
		if r := recover(); r != nil {
			sel = nil
			err = panicAsError(r)
		}
	}()
	return s.SelectModel(ctx, task, rctx)
}

func (o *Orchestrator) publishSelected(ctx context.Context, sel Selection) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(ctx, hooks.Event{
		Type:    hooks.EventStrategySelected,
		Name:    sel.Strategy,
		Reason:  sel.Reason,
		Payload: sel,
	})
}

func (o *Orchestrator) publishBypass(ctx context.Context, name string) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(ctx, hooks.Event{
		Type: hooks.EventStrategyBypassed,
		Name: name,
	})
}
