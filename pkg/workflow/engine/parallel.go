package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opencode-ai/controlplane/pkg/workflow/store"
)

// runParallelFor implements §4.1's "Parallel fan-out": materializes child
// steps with composite ids `<parent>:<index>` from spec.Foreach resolved
// against rc, dispatches them with a bounded worker pool, and marks the
// parent completed only when all children are completed. Any child
// failure fails the parent only after exhausting the parent's own
// spec.Retries (zero by default), retrying the full fan-out with the same
// backoff schedule runStep uses for ordinary steps.
func (e *Engine) runParallelFor(ctx context.Context, runID string, spec StepSpec, rc *RunContext) error {
	if spec.Substep == nil {
		return &ValidationError{Field: "substep", Reason: "parallel-for requires a substep template"}
	}

	seq, ok := rc.Sequence(spec.Foreach)
	if !ok {
		return &ValidationError{Field: "foreach", Reason: fmt.Sprintf("no sequence bound to %q", spec.Foreach)}
	}

	existing, err := e.loadStep(ctx, runID, spec.ID)
	if err != nil {
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

		fanErr := e.runFanOut(ctx, runID, spec, rc, seq)
		if fanErr == nil {
			return e.transitionStep(ctx, runID, spec, attempts, store.StepCompleted, nil)
		}

		if attempts >= spec.Retries {
			_ = e.transitionStep(ctx, runID, spec, attempts, store.StepFailed, nil)
			return fanErr
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

// runFanOut dispatches one pass of the bounded-parallelism child steps,
// skipping any already completed from a prior attempt or a prior process's
// crash (§4.1 "Idempotent resume" applies per-child as well as per-step).
func (e *Engine) runFanOut(ctx context.Context, runID string, spec StepSpec, rc *RunContext, seq []any) error {
	limit := e.parallelism
	if limit <= 0 {
		limit = defaultParallelism
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	errs := make([]error, len(seq))
	for i, item := range seq {
		i, item := i, item
		childID := fmt.Sprintf("%s:%d", spec.ID, i)

		existing, err := e.loadStep(ctx, runID, childID)
		if err != nil {
			return err
		}
		if existing.Status == store.StepCompleted {
			continue
		}

		childRC := NewRunContext()
		for k, v := range rc.values {
			childRC.Set(k, v)
		}
		childRC.Set("item", item)
		childRC.Set("index", i)

		child := StepSpec{
			ID:      childID,
			Type:    spec.Substep.Type,
			Retries: spec.Substep.Retries,
			Backoff: spec.Substep.Backoff,
			Input:   spec.Substep.Input,
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			errs[i] = e.runStep(ctx, runID, child, childRC, existing)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
