package circuitbreaker

import (
	"fmt"
	"time"
)

// OpenError is returned by Execute when the breaker is OPEN. fn is never
// invoked when this error is returned (§4.4 Invariants).
type OpenError struct {
	// Name is the breaker (resource) name.
	Name string
	// RetryAfter is the remaining cooldown before the breaker allows a
	// probe call.
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuitbreaker: %q is open, retry after %s", e.Name, e.RetryAfter)
}
