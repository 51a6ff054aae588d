package store

import "time"

// RunStatus is a WorkflowRun's lifecycle state (§3 WorkflowRun).
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// StepStatus is a WorkflowStep's lifecycle state (§3 WorkflowStep).
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Run is the durable row for a WorkflowRun (§3).
type Run struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Status    RunStatus `db:"status"`
	Input     []byte    `db:"input"`
	Context   []byte    `db:"context"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Step is the durable row for a WorkflowStep (§3). Attempts counts
// retries, not total tries (§9 Open Question 1: "this specification
// adopts retries-only").
type Step struct {
	RunID     string     `db:"run_id"`
	StepID    string     `db:"step_id"`
	Type      string     `db:"type"`
	Status    StepStatus `db:"status"`
	Attempts  int        `db:"attempts"`
	Result    []byte     `db:"result"`
	UpdatedAt time.Time  `db:"updated_at"`
}

// AuditEvent is an append-only per-run event (§3).
type AuditEvent struct {
	ID        int64     `db:"id"`
	RunID     string    `db:"run_id"`
	EventType string    `db:"event_type"`
	Payload   []byte    `db:"payload"`
	CreatedAt time.Time `db:"created_at"`
}
