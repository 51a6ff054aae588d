package engine

import "fmt"

// ValidationError rejects bad input to a public API call before any state
// mutation (§7 Error Handling Design).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("workflow: invalid %s: %s", e.Field, e.Reason)
}

// CancellationError is the run-failure cause recorded when execute's
// context is cancelled (§5 "Cancellation and timeouts").
type CancellationError struct {
	RunID string
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("workflow: run %s cancelled", e.RunID)
}
