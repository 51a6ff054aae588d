// Package store implements the Workflow Engine's durable SQLite-backed
// store (§4.1 "Storage"): workflow_runs, workflow_steps, and audit_events,
// plus the provider_quotas/api_usage/routing_decisions tables §6 assigns
// to the same workflow.db file. The store opens in WAL mode with
// synchronous=NORMAL so a crash never leaves it in a torn state (§4.1).
package store

import (
	"context"
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Store wraps the workflow.db connection. All writes within one step
// transition occur inside a single *sqlx.Tx (§4.1: "All writes within one
// step transition ... occur in one atomic transaction").
type Store struct {
	DB *sqlx.DB
}

// Open opens (creating if necessary) the SQLite database at path, applies
// pending goose migrations, and configures WAL + synchronous=NORMAL.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, &StorageError{Path: path, Op: "open", Cause: err}
	}
	db.SetMaxOpenConns(1) // single-writer discipline (§3 Ownership)

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return nil, &StorageError{Path: path, Op: "set-dialect", Cause: err}
	}
	if err := goose.Up(db.DB, "migrations"); err != nil {
		return nil, &StorageError{Path: path, Op: "migrate", Cause: err}
	}

	return &Store{DB: db}, nil
}

// OpenReadOnly opens path for observers per §5 "Shared-resource policy":
// "may be opened read-only by observers." No migrations are applied.
func OpenReadOnly(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_journal_mode=WAL", path)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, &StorageError{Path: path, Op: "open-readonly", Cause: err}
	}
	return &Store{DB: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.DB.Close()
}

// WithTx runs fn inside a single transaction, committing on success and
// rolling back on error or panic. Every step-transition write goes through
// this (§4.1).
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return &StorageError{Op: "begin-tx", Cause: err}
	}
	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return &StorageError{Op: "commit", Cause: err}
	}
	return nil
}
