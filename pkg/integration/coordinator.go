package integration

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/opencode-ai/controlplane/internal/hooks"
	"github.com/opencode-ai/controlplane/internal/telemetry"
	"github.com/opencode-ai/controlplane/pkg/circuitbreaker"
	"github.com/opencode-ai/controlplane/pkg/quota"
	"github.com/opencode-ai/controlplane/pkg/strategy"
)

// ProviderCall invokes the selected provider/model for a task. A non-nil
// error fails the attempt; callers implement it over whatever transport
// the provider uses (model inference itself is out of scope here).
type ProviderCall func(ctx context.Context, sel strategy.Selection) error

// Outcome summarizes one RouteTask call for the caller and for evidence
// capture.
type Outcome struct {
	Decision  quota.RoutingDecision
	Selection strategy.Selection
	Err       error
}

// Coordinator implements §2 Composition: a task enters the Integration
// layer, is enriched with a quota signal from the Quota Manager, routed via
// the Strategy Orchestrator, guarded by the Circuit Breaker Registry on the
// provider call, and on completion records the outcome in the learning
// channel (a success count on success, an anti-pattern on failure), always
// logging a routing decision. Provider usage is not recorded with the
// Quota Manager here.
type Coordinator struct {
	Quota        *quota.Manager
	Strategy     *strategy.Orchestrator
	Breakers     *circuitbreaker.Registry
	Learning     *LearningChannel
	Evidence     *EvidenceWriter
	Bus          hooks.Bus
	Logger       telemetry.Logger
	HighImpact   func(task strategy.Task) bool
	BreakerFor   func(sel strategy.Selection) string
}

// NewCoordinator constructs a Coordinator. A nil HighImpact or BreakerFor
// falls back to a conservative default (never high-impact; breaker keyed
// by the selected model id).
func NewCoordinator(q *quota.Manager, s *strategy.Orchestrator, b *circuitbreaker.Registry,
	learning *LearningChannel, evidence *EvidenceWriter, bus hooks.Bus, logger telemetry.Logger) *Coordinator {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Coordinator{
		Quota: q, Strategy: s, Breakers: b, Learning: learning, Evidence: evidence,
		Bus: bus, Logger: logger,
		HighImpact: func(strategy.Task) bool { return false },
		BreakerFor: func(sel strategy.Selection) string { return sel.ModelID },
	}
}

// buildRoutingContext enriches a RoutingContext with the current quota
// signal for every non-exhausted provider the Quota Manager reports via
// GetHealthyProviders (§2 "enriched with a quota signal from the Quota
// Manager"), plus the learning
// penalties recorded so far.
func (c *Coordinator) buildRoutingContext(ctx context.Context, strategies []string) strategy.RoutingContext {
	rctx := strategy.RoutingContext{
		QuotaPercentUsed: make(map[string]float64),
		LearningPenalty:  make(map[string]float64),
	}
	if c.Quota != nil {
		for _, hp := range c.Quota.GetHealthyProviders(ctx) {
			rctx.QuotaPercentUsed[hp.ProviderID] = hp.PercentUsed
		}
	}
	if c.Learning != nil {
		for _, name := range strategies {
			rctx.LearningPenalty[name] = c.Learning.PenaltyFor(name)
		}
	}
	return rctx
}

// RouteTask runs task through the full Integration composition: quota
// enrichment, strategy selection, circuit-breaker-guarded provider call,
// learning feedback, and routing-decision logging.
func (c *Coordinator) RouteTask(ctx context.Context, task strategy.Task, strategyNames []string, call ProviderCall) Outcome {
	rctx := c.buildRoutingContext(ctx, strategyNames)

	sel := c.Strategy.Select(ctx, task, rctx)

	decision := quota.RoutingDecision{
		ID:                uuid.NewString(),
		TaskID:            task.ID,
		RequestedCategory: task.Category,
		RequestedSkills:   task.Skills,
		OriginalSelection: task.RequestedModel,
		FinalSelection:    sel.ModelID,
		Reason:            sel.Reason,
		FallbackApplied:   task.RequestedModel != "" && sel.ModelID != task.RequestedModel,
		Timestamp:         time.Now(),
	}
	for providerID, pct := range rctx.QuotaPercentUsed {
		decision.QuotaFactors = append(decision.QuotaFactors, quota.QuotaFactor{
			Provider: providerID, Percent: pct, Reason: "quota_percent_used",
		})
	}

	if sel.Strategy == "none" || sel.ModelID == "" {
		out := Outcome{Decision: decision, Selection: sel, Err: errors.New("no strategy produced a selection")}
		c.finish(ctx, task, out)
		return out
	}

	var callErr error
	if c.Breakers != nil {
		breakerName := c.BreakerFor(sel)
		breaker := c.Breakers.Get(breakerName, circuitbreaker.Settings{})
		callErr = breaker.Execute(ctx, func(ctx context.Context) error { return call(ctx, sel) })
	} else {
		callErr = call(ctx, sel)
	}

	out := Outcome{Decision: decision, Selection: sel, Err: callErr}
	c.finish(ctx, task, out)
	return out
}

func (c *Coordinator) finish(ctx context.Context, task strategy.Task, out Outcome) {
	if c.Quota != nil {
		c.Quota.LogRoutingDecision(ctx, out.Decision)
	}

	if out.Err != nil {
		if c.Learning != nil {
			c.Learning.RecordFailure(ctx, AntiPattern{
				Label:      "provider_call_failed",
				Task:       task.ID,
				Strategy:   out.Selection.Strategy,
				DetectedAt: time.Now(),
			}, "penalize "+out.Selection.Strategy+" after provider call failure")
		}
		c.Logger.Warn(ctx, "routed task failed", "task", task.ID, "strategy", out.Selection.Strategy, "error", out.Err)
	} else if c.Learning != nil {
		c.Learning.RecordSuccess(ctx)
	}

	if c.Evidence != nil && c.HighImpact(task) {
		_, _ = c.Evidence.Write(Evidence{
			TaskID: task.ID, Category: task.Category, Selection: out.Selection.ModelID,
			Strategy: out.Selection.Strategy, Reason: out.Selection.Reason, HighImpact: true,
		})
	}
}
