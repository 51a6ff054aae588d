package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

// TestUpdateRunStatusIssuesExactSQL asserts the exact statement and
// argument order UpdateRunStatus issues, so a future refactor that changes
// column order or adds an unintended write is caught at the SQL layer
// rather than only through behavioral tests against a real file.
func TestUpdateRunStatusIssuesExactSQL(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer mockDB.Close()
	db := sqlx.NewDb(mockDB, "sqlmock")

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE workflow_runs SET status = \?, context = \?, updated_at = \? WHERE id = \?`).
		WithArgs(RunCompleted, []byte("{}"), now, "run-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := UpdateRunStatus(ctx, tx, Run{ID: "run-1", Status: RunCompleted, Context: []byte("{}"), UpdatedAt: now}); err != nil {
		t.Fatalf("UpdateRunStatus: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

// TestResetRunningStepsToPendingIssuesExactSQL asserts the crash-recovery
// statement targets only `running` steps for the given run (§4.1
// "Idempotent resume").
func TestResetRunningStepsToPendingIssuesExactSQL(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer mockDB.Close()
	db := sqlx.NewDb(mockDB, "sqlmock")

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE workflow_steps SET status = \? WHERE run_id = \? AND status = \?`).
		WithArgs(StepPending, "run-2", StepRunning).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	ctx := context.Background()
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := ResetRunningStepsToPending(ctx, tx, "run-2"); err != nil {
		t.Fatalf("ResetRunningStepsToPending: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
