package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("workflow store: not found")

// InsertRun writes a fresh WorkflowRun row inside tx (§4.1 create_run).
func InsertRun(ctx context.Context, tx *sqlx.Tx, run Run) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO workflow_runs (id, name, status, input, context, created_at, updated_at)
		VALUES (:id, :name, :status, :input, :context, :created_at, :updated_at)`, run)
	if err != nil {
		return &StorageError{Path: run.ID, Op: "insert-run", Cause: err}
	}
	return nil
}

// GetRun reads a single WorkflowRun by id.
func GetRun(ctx context.Context, q sqlx.QueryerContext, runID string) (Run, error) {
	var run Run
	err := sqlx.GetContext(ctx, q, &run, `SELECT * FROM workflow_runs WHERE id = ?`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, &StorageError{Path: runID, Op: "get-run", Cause: err}
	}
	return run, nil
}

// UpdateRunStatus updates a run's status and context within tx.
func UpdateRunStatus(ctx context.Context, tx *sqlx.Tx, run Run) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE workflow_runs SET status = ?, context = ?, updated_at = ? WHERE id = ?`,
		run.Status, run.Context, run.UpdatedAt, run.ID)
	if err != nil {
		return &StorageError{Path: run.ID, Op: "update-run-status", Cause: err}
	}
	return nil
}

// UpsertStep inserts or replaces a WorkflowStep row within tx. The step
// transition and its audit event are written in the same transaction by
// the caller (§4.1: "All writes within one step transition ... occur in
// one atomic transaction").
func UpsertStep(ctx context.Context, tx *sqlx.Tx, step Step) error {
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO workflow_steps (run_id, step_id, type, status, attempts, result, updated_at)
		VALUES (:run_id, :step_id, :type, :status, :attempts, :result, :updated_at)
		ON CONFLICT(run_id, step_id) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			result = excluded.result,
			updated_at = excluded.updated_at`, step)
	if err != nil {
		return &StorageError{Path: step.RunID + ":" + step.StepID, Op: "upsert-step", Cause: err}
	}
	return nil
}

// ListSteps returns every step for runID, ordered by step_id for
// deterministic iteration.
func ListSteps(ctx context.Context, q sqlx.QueryerContext, runID string) ([]Step, error) {
	var steps []Step
	err := sqlx.SelectContext(ctx, q, &steps,
		`SELECT * FROM workflow_steps WHERE run_id = ? ORDER BY step_id`, runID)
	if err != nil {
		return nil, &StorageError{Path: runID, Op: "list-steps", Cause: err}
	}
	return steps, nil
}

// ResetRunningStepsToPending implements crash recovery (§4.1 "Idempotent
// resume": "A step in running is reset to pending before dispatch").
func ResetRunningStepsToPending(ctx context.Context, tx *sqlx.Tx, runID string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE workflow_steps SET status = ? WHERE run_id = ? AND status = ?`,
		StepPending, runID, StepRunning)
	if err != nil {
		return &StorageError{Path: runID, Op: "reset-running-steps", Cause: err}
	}
	return nil
}

// AppendAuditEvent appends an AuditEvent within tx (§3: "Append-only per run").
func AppendAuditEvent(ctx context.Context, tx *sqlx.Tx, ev AuditEvent) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO audit_events (run_id, event_type, payload, created_at) VALUES (?, ?, ?, ?)`,
		ev.RunID, ev.EventType, ev.Payload, ev.CreatedAt)
	if err != nil {
		return &StorageError{Path: ev.RunID, Op: "append-audit-event", Cause: err}
	}
	return nil
}

// ListAuditEvents returns every audit event for runID in id order.
func ListAuditEvents(ctx context.Context, q sqlx.QueryerContext, runID string) ([]AuditEvent, error) {
	var events []AuditEvent
	err := sqlx.SelectContext(ctx, q, &events,
		`SELECT * FROM audit_events WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, &StorageError{Path: runID, Op: "list-audit-events", Cause: err}
	}
	return events, nil
}
