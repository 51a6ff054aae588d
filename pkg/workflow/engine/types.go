// Package engine implements the Workflow Engine's executor: idempotent
// resume, bounded retries with backoff, and bounded parallel-for fan-out
// over the durable store in pkg/workflow/store (§4.1).
package engine

import (
	"context"
	"encoding/json"
)

// StepSpec describes one step of a workflow definition (§4.1 Responsibility).
type StepSpec struct {
	ID      string
	Type    string
	Retries int           // default 0
	Backoff int           // milliseconds, default 100
	Input   any
	// Foreach and Substep are only used when Type == ParallelForType.
	Foreach string
	Substep *StepSpec
}

// ParallelForType is the reserved step Type that triggers bounded
// parallel fan-out (§4.1 "Parallel fan-out").
const ParallelForType = "parallel-for"

// Definition is an ordered list of steps plus the workflow's logical name.
type Definition struct {
	Name  string
	Steps []StepSpec
}

// Handler executes one step's business logic. It receives the step spec
// and the run's mutable context, returning an opaque result or an error
// (§4.1 Public contract: "fn(step, context) -> result").
type Handler func(ctx context.Context, step StepSpec, runContext *RunContext) (any, error)

// RunContext is the mutable structured value threaded through a run's
// handlers (§3 WorkflowRun "context"). Sequence resolves the
// `foreach` expression for parallel-for steps by looking up a slice value
// by key; handlers populate it via Set.
type RunContext struct {
	values map[string]any
}

// NewRunContext constructs an empty RunContext.
func NewRunContext() *RunContext {
	return &RunContext{values: make(map[string]any)}
}

// Set stores a value under key.
func (c *RunContext) Set(key string, v any) {
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = v
}

// Get retrieves a value by key.
func (c *RunContext) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Sequence resolves key to a finite sequence, as required to evaluate a
// parallel-for step's `foreach` expression (§4.1 "Parallel fan-out").
func (c *RunContext) Sequence(key string) ([]any, bool) {
	v, ok := c.values[key]
	if !ok {
		return nil, false
	}
	seq, ok := v.([]any)
	return seq, ok
}

// MarshalJSON / UnmarshalJSON let RunContext round-trip through the
// store's BLOB columns.
func (c *RunContext) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.values)
}

func (c *RunContext) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		c.values = make(map[string]any)
		return nil
	}
	return json.Unmarshal(data, &c.values)
}

// RunResult is execute's return value (§4.1 Public contract).
type RunResult struct {
	RunID  string
	Status string // "completed" or "failed"
	Error  error
}

// RunState is get_run_state's return value (§4.1 Public contract).
type RunState struct {
	Run    RunSummary
	Steps  []StepSummary
	Events []EventSummary
}

// RunSummary mirrors store.Run without the package's storage-layer tags.
type RunSummary struct {
	ID     string
	Name   string
	Status string
}

// StepSummary mirrors store.Step.
type StepSummary struct {
	StepID   string
	Type     string
	Status   string
	Attempts int
	Result   any
}

// EventSummary mirrors store.AuditEvent.
type EventSummary struct {
	ID        int64
	EventType string
	Payload   any
}
