package quota

import (
	"fmt"
	"strings"
)

// ValidationError rejects bad input to a public API call before any state
// mutation (§7 Error Handling Design: "Validation errors ... rejected
// before mutating state").
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("quota: invalid %s: %s", e.Field, e.Reason)
}

// ExhaustedError is returned when every fallback candidate is also
// exhausted (§7: "Quota-exhausted ... carries the exhausted set").
type ExhaustedError struct {
	Exhausted []string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("quota: all candidate providers exhausted: %s", strings.Join(e.Exhausted, ", "))
}
