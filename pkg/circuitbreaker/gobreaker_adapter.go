package circuitbreaker

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
)

// GobreakerAdapter constructs a Breaker-compatible circuit using
// sony/gobreaker directly, for callers that want the upstream library's
// battle-tested counting logic instead of this package's custom
// implementation. It is wired into the same Execute(ctx, fn) shape so
// callers can swap between the two without touching call sites.
//
// The mapping to spec §4.4 is: gobreaker's MaxRequests in half-open
// corresponds to this package's SuccessThreshold, and ReadyToTrip's
// ConsecutiveFailures check corresponds to FailureThreshold. Unlike
// Breaker, GobreakerAdapter does not publish hooks.Event notifications; it
// is offered for the simple case where only the call-guarding behavior is
// needed.
type GobreakerAdapter struct {
	cb *gobreaker.CircuitBreaker
}

// NewGobreakerAdapter constructs a GobreakerAdapter with the given name and
// thresholds.
func NewGobreakerAdapter(name string, failureThreshold, successThreshold uint32, timeout time.Duration) *GobreakerAdapter {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: successThreshold,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failureThreshold
		},
	}
	return &GobreakerAdapter{cb: gobreaker.NewCircuitBreaker(st)}
}

// Execute runs fn through the underlying gobreaker circuit.
func (a *GobreakerAdapter) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := a.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// State returns the adapter's current gobreaker state name.
func (a *GobreakerAdapter) State() string {
	return a.cb.State().String()
}
