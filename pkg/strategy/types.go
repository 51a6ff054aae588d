// Package strategy implements the Strategy Orchestrator: ordered,
// priority-based model-selection strategies with per-strategy health
// tracking and cooperative bypass (§4.3).
package strategy

import "context"

// Task is the unit of work a Strategy evaluates. Fields beyond Category
// and RequestedModel are opaque to the orchestrator and carried only for
// strategies to inspect.
type Task struct {
	ID             string
	Category       string
	RequestedModel string
	AllowFallback  bool
	Skills         []string
}

// RoutingContext carries ambient signal (quota status, learning penalties,
// tail latencies) that strategies may consult when selecting a model.
// Components outside this package populate it before dispatch.
type RoutingContext struct {
	QuotaPercentUsed map[string]float64
	LearningPenalty  map[string]float64
	TailLatencyP95Ms map[string]float64
	TailLatencyP99Ms map[string]float64
	Values           map[string]any
}

// Selection is what a Strategy returns when it successfully picks a model
// (§4.3 Strategy contract).
type Selection struct {
	ModelID  string
	Strategy string
	Reason   string
}

// Strategy is the interface every selection strategy implements (§4.3
// Strategy contract). A Strategy that returns a nil Selection cedes to the
// next strategy; one that returns an error is recorded as a failure and
// never interrupts orchestration.
type Strategy interface {
	Priority() int
	Name() string
	ShouldApply(ctx context.Context, task Task, rctx RoutingContext) bool
	SelectModel(ctx context.Context, task Task, rctx RoutingContext) (*Selection, error)
}

// Func adapts plain functions into a Strategy, for small strategies that
// don't need their own type (grounded on the teacher's middleware-as-
// function convention in model/middleware).
type Func struct {
	PriorityValue int
	NameValue     string
	ShouldApplyFn func(ctx context.Context, task Task, rctx RoutingContext) bool
	SelectFn      func(ctx context.Context, task Task, rctx RoutingContext) (*Selection, error)
}

func (f Func) Priority() int { return f.PriorityValue }
func (f Func) Name() string  { return f.NameValue }
func (f Func) ShouldApply(ctx context.Context, task Task, rctx RoutingContext) bool {
	if f.ShouldApplyFn == nil {
		return true
	}
	return f.ShouldApplyFn(ctx, task, rctx)
}
func (f Func) SelectModel(ctx context.Context, task Task, rctx RoutingContext) (*Selection, error) {
	return f.SelectFn(ctx, task, rctx)
}
