package strategy

import "fmt"

// panicAsError converts a recovered panic value into an error so a
// misbehaving Strategy.SelectModel can never crash the orchestrator.
func panicAsError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("strategy panicked: %w", err)
	}
	return fmt.Errorf("strategy panicked: %v", r)
}
