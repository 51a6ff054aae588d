package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/opencode-ai/controlplane/internal/hooks"
	"github.com/opencode-ai/controlplane/internal/telemetry"
	"github.com/opencode-ai/controlplane/pkg/workflow/store"
)

// maxBackoff caps the retry backoff delay regardless of attempt count,
// satisfying §4.1's "capped at some implementation limit".
const maxBackoff = 30 * time.Second

// defaultParallelism bounds parallel-for fan-out; New sets every Engine's
// parallelism to it (§9 Design Notes: "bounded worker pool ... avoid
// unbounded spawning").
const defaultParallelism = 8

// Engine executes workflow Definitions against the durable store,
// guaranteeing idempotent resume after crash and bounded retries per step
// (§4.1 Responsibility).
type Engine struct {
	store  *store.Store
	bus    hooks.Bus
	logger telemetry.Logger
	clock  func() time.Time

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	parallelism int
}

// New constructs an Engine backed by st.
func New(st *store.Store, bus hooks.Bus, logger telemetry.Logger) *Engine {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Engine{
		store:       st,
		bus:         bus,
		logger:      logger,
		clock:       time.Now,
		handlers:    make(map[string]Handler),
		parallelism: defaultParallelism,
	}
}

// RegisterHandler binds a step type to a handler. Duplicate registration
// replaces the prior binding (§4.1 Public contract).
func (e *Engine) RegisterHandler(stepType string, fn Handler) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.handlers[stepType] = fn
}

func (e *Engine) handlerFor(stepType string) (Handler, bool) {
	e.handlersMu.RLock()
	defer e.handlersMu.RUnlock()
	h, ok := e.handlers[stepType]
	return h, ok
}

// CreateRun allocates a fresh identifier, writes WorkflowRun(status=running),
// and fails only on storage error (§4.1 Public contract).
func (e *Engine) CreateRun(ctx context.Context, name string, input any) (string, error) {
	if name == "" {
		return "", &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	runID := uuid.NewString()
	now := e.clock()

	inputData, err := json.Marshal(input)
	if err != nil {
		return "", &ValidationError{Field: "input", Reason: "must be JSON-marshalable"}
	}

	run := store.Run{
		ID:        runID,
		Name:      name,
		Status:    store.RunRunning,
		Input:     inputData,
		Context:   []byte("{}"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := store.InsertRun(ctx, tx, run); err != nil {
			return err
		}
		return store.AppendAuditEvent(ctx, tx, store.AuditEvent{
			RunID: runID, EventType: "run.created", Payload: inputData, CreatedAt: now,
		})
	})
	if err != nil {
		return "", err
	}
	return runID, nil
}

// Execute runs def against input; if runID is non-empty and exists the run
// resumes, otherwise a new run is created (§4.1 Public contract).
func (e *Engine) Execute(ctx context.Context, def Definition, input any, runID string) (RunResult, error) {
	if runID == "" {
		created, err := e.CreateRun(ctx, def.Name, input)
		if err != nil {
			return RunResult{}, err
		}
		runID = created
	} else if _, err := store.GetRun(ctx, e.store.DB, runID); err != nil {
		if err == store.ErrNotFound {
			created, cErr := e.CreateRun(ctx, def.Name, input)
			if cErr != nil {
				return RunResult{}, cErr
			}
			runID = created
		} else {
			return RunResult{}, err
		}
	}

	// Crash recovery: any step left `running` across a process boundary is
	// reset to `pending` before dispatch (§4.1 "Idempotent resume").
	if err := e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return store.ResetRunningStepsToPending(ctx, tx, runID)
	}); err != nil {
		return RunResult{}, err
	}

	rc, err := e.loadRunContext(ctx, runID)
	if err != nil {
		return RunResult{}, err
	}
	if input != nil {
		rc.Set("input", input)
	}

	for _, spec := range def.Steps {
		if ctx.Err() != nil {
			return e.failRun(ctx, runID, rc, &CancellationError{RunID: runID})
		}

		existing, err := e.loadStep(ctx, runID, spec.ID)
		if err != nil {
			return RunResult{}, err
		}
		if existing.Status == store.StepCompleted {
			// Completed steps are skipped entirely; the handler is not
			// called (§4.1 Idempotent resume).
			continue
		}

		var stepErr error
		if spec.Type == ParallelForType {
			stepErr = e.runParallelFor(ctx, runID, spec, rc)
		} else {
			stepErr = e.runStep(ctx, runID, spec, rc, existing)
		}
		if stepErr != nil {
			return e.failRun(ctx, runID, rc, stepErr)
		}
	}

	if err := e.completeRun(ctx, runID, rc); err != nil {
		return RunResult{}, err
	}
	return RunResult{RunID: runID, Status: string(store.RunCompleted)}, nil
}

// GetRunState returns an atomic read of the durable state at call time
// (§4.1 Public contract).
func (e *Engine) GetRunState(ctx context.Context, runID string) (RunState, error) {
	var state RunState
	err := e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		run, err := store.GetRun(ctx, tx, runID)
		if err != nil {
			return err
		}
		steps, err := store.ListSteps(ctx, tx, runID)
		if err != nil {
			return err
		}
		events, err := store.ListAuditEvents(ctx, tx, runID)
		if err != nil {
			return err
		}

		state.Run = RunSummary{ID: run.ID, Name: run.Name, Status: string(run.Status)}
		for _, s := range steps {
			var result any
			if len(s.Result) > 0 {
				_ = json.Unmarshal(s.Result, &result)
			}
			state.Steps = append(state.Steps, StepSummary{
				StepID: s.StepID, Type: s.Type, Status: string(s.Status), Attempts: s.Attempts, Result: result,
			})
		}
		for _, ev := range events {
			var payload any
			if len(ev.Payload) > 0 {
				_ = json.Unmarshal(ev.Payload, &payload)
			}
			state.Events = append(state.Events, EventSummary{ID: ev.ID, EventType: ev.EventType, Payload: payload})
		}
		return nil
	})
	if err != nil {
		return RunState{}, err
	}
	return state, nil
}

func (e *Engine) loadRunContext(ctx context.Context, runID string) (*RunContext, error) {
	run, err := store.GetRun(ctx, e.store.DB, runID)
	if err != nil {
		return nil, err
	}
	rc := NewRunContext()
	if len(run.Context) > 0 {
		if err := rc.UnmarshalJSON(run.Context); err != nil {
			return nil, &ValidationError{Field: "context", Reason: "corrupt stored run context"}
		}
	}
	return rc, nil
}

func (e *Engine) loadStep(ctx context.Context, runID, stepID string) (store.Step, error) {
	steps, err := store.ListSteps(ctx, e.store.DB, runID)
	if err != nil {
		return store.Step{}, err
	}
	for _, s := range steps {
		if s.StepID == stepID {
			return s, nil
		}
	}
	return store.Step{RunID: runID, StepID: stepID, Status: store.StepPending}, nil
}

// runStep executes a single (non parallel-for) step with bounded retries
// and backoff (§4.1 "Retry semantics").
func (e *Engine) runStep(ctx context.Context, runID string, spec StepSpec, rc *RunContext, existing store.Step) error {
	handler, ok := e.handlerFor(spec.Type)
	if !ok {
		err := &ValidationError{Field: "step.type", Reason: "no handler registered for " + spec.Type}
		if tErr := e.transitionStep(ctx, runID, spec, existing.Attempts, store.StepFailed, nil); tErr != nil {
			return tErr
		}
		return err
	}

	attempts := existing.Attempts
	backoffBase := spec.Backoff
	if backoffBase <= 0 {
		backoffBase = 100
	}

	for {
		if err := e.transitionStep(ctx, runID, spec, attempts, store.StepRunning, nil); err != nil {
			return err
		}

		result, hErr := handler(ctx, spec, rc)
		if hErr == nil {
			data, _ := json.Marshal(result)
			return e.transitionStep(ctx, runID, spec, attempts, store.StepCompleted, data)
		}

		if attempts >= spec.Retries {
			_ = e.transitionStep(ctx, runID, spec, attempts, store.StepFailed, nil)
			return hErr
		}

		attempts++
		delay := computeBackoff(backoffBase, attempts)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// computeBackoff implements `backoff * 2^(attempts-1)` capped at
// maxBackoff (§4.1 "Retry semantics").
func computeBackoff(baseMillis, attempts int) time.Duration {
	d := time.Duration(baseMillis) * time.Millisecond
	for i := 1; i < attempts; i++ {
		d *= 2
		if d > maxBackoff {
			return maxBackoff
		}
	}
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

// transitionStep persists a step's status/attempts/result and appends a
// matching audit event in one transaction (§4.1 "Storage").
func (e *Engine) transitionStep(ctx context.Context, runID string, spec StepSpec, attempts int, status store.StepStatus, result []byte) error {
	now := e.clock()
	step := store.Step{
		RunID: runID, StepID: spec.ID, Type: spec.Type,
		Status: status, Attempts: attempts, Result: result, UpdatedAt: now,
	}
	err := e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := store.UpsertStep(ctx, tx, step); err != nil {
			return err
		}
		return store.AppendAuditEvent(ctx, tx, store.AuditEvent{
			RunID: runID, EventType: "step." + string(status), Payload: result, CreatedAt: now,
		})
	})
	if err != nil {
		return err
	}
	if e.bus != nil {
		e.bus.Publish(ctx, hooks.Event{
			Type: hooks.EventWorkflowStepCompleted, Name: spec.ID, To: string(status),
		})
	}
	return nil
}

func (e *Engine) completeRun(ctx context.Context, runID string, rc *RunContext) error {
	now := e.clock()
	ctxData, _ := rc.MarshalJSON()
	return e.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := store.UpdateRunStatus(ctx, tx, store.Run{ID: runID, Status: store.RunCompleted, UpdatedAt: now, Context: ctxData}); err != nil {
			return err
		}
		return store.AppendAuditEvent(ctx, tx, store.AuditEvent{RunID: runID, EventType: "run.completed", CreatedAt: now})
	})
}

// failRun marks the run failed and surfaces cause to the caller (§4.1
// "Failure semantics"; §5 "Cancellation and timeouts").
func (e *Engine) failRun(ctx context.Context, runID string, rc *RunContext, cause error) (RunResult, error) {
	now := e.clock()
	reason, _ := json.Marshal(cause.Error())
	ctxData, _ := rc.MarshalJSON()
	// The failure is recorded even when ctx is already cancelled.
	dbCtx := context.WithoutCancel(ctx)
	_ = e.store.WithTx(dbCtx, func(tx *sqlx.Tx) error {
		if err := store.UpdateRunStatus(dbCtx, tx, store.Run{ID: runID, Status: store.RunFailed, UpdatedAt: now, Context: ctxData}); err != nil {
			return err
		}
		return store.AppendAuditEvent(dbCtx, tx, store.AuditEvent{RunID: runID, EventType: "run.failed", Payload: reason, CreatedAt: now})
	})
	return RunResult{RunID: runID, Status: string(store.RunFailed), Error: cause}, cause
}
