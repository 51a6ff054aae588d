// Package circuitbreaker implements the per-resource failure isolation
// registry described in spec §4.4: a three-state machine (CLOSED,
// HALF_OPEN, OPEN) with timed recovery probing, guarding calls to an
// underlying provider, key, or endpoint.
package circuitbreaker

// State is one of the three states a Breaker can be in.
type State int

const (
	// Closed passes traffic normally; a success resets the failure counter.
	Closed State = iota
	// HalfOpen allows a bounded number of probe calls to determine whether
	// to close or reopen the breaker.
	HalfOpen
	// Open rejects all calls immediately until the timeout elapses.
	Open
)

// String renders the state using the spec's uppercase names.
func (s State) String() string {
	switch s {
	case Closed:
		return "CLOSED"
	case HalfOpen:
		return "HALF_OPEN"
	case Open:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}
