package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fakeClock(start time.Time) (func() time.Time, *time.Time) {
	now := start
	return func() time.Time { return now }, &now
}

var errBoom = errors.New("boom")

// TestBreakerTripsAfterThreshold verifies S4 / invariant 6: a breaker with
// failure_threshold=N calls the wrapped function exactly 0 times during the
// OPEN window following N consecutive failures.
func TestBreakerTripsAfterThreshold(t *testing.T) {
	clockFn, now := fakeClock(time.Unix(0, 0))
	b := NewBreaker(Settings{
		Name:             "provider-x",
		FailureThreshold: 3,
		SuccessThreshold: 2,
		Timeout:          time.Second,
		Clock:            clockFn,
	}, nil, nil)

	calls := 0
	fail := func(context.Context) error { calls++; return errBoom }

	for i := 0; i < 3; i++ {
		if err := b.Execute(context.Background(), fail); !errors.Is(err, errBoom) {
			t.Fatalf("attempt %d: want errBoom, got %v", i, err)
		}
	}
	if b.State() != Open {
		t.Fatalf("want Open after 3 consecutive failures, got %s", b.State())
	}
	if calls != 3 {
		t.Fatalf("want 3 calls, got %d", calls)
	}

	// Any call within the timeout window must fail with OpenError and must
	// not invoke fn.
	err := b.Execute(context.Background(), fail)
	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("want *OpenError, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("fn must not be called while OPEN, got %d calls", calls)
	}

	// Advance the clock past the timeout: the next call probes HALF_OPEN.
	*now = now.Add(1001 * time.Millisecond)
	succeed := func(context.Context) error { calls++; return nil }
	if err := b.Execute(context.Background(), succeed); err != nil {
		t.Fatalf("probe call: %v", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("want HalfOpen after first post-timeout call, got %s", b.State())
	}

	// Second success in HALF_OPEN closes the breaker.
	if err := b.Execute(context.Background(), succeed); err != nil {
		t.Fatalf("second probe: %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("want Closed after success_threshold successes, got %s", b.State())
	}
}

// TestBreakerHalfOpenFailureReopens verifies §4.4: HALF_OPEN -> OPEN on the
// first failure in HALF_OPEN, restarting the timeout.
func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	clockFn, now := fakeClock(time.Unix(0, 0))
	b := NewBreaker(Settings{
		Name:             "provider-y",
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          time.Second,
		Clock:            clockFn,
	}, nil, nil)

	fail := func(context.Context) error { return errBoom }
	if err := b.Execute(context.Background(), fail); !errors.Is(err, errBoom) {
		t.Fatal(err)
	}
	if b.State() != Open {
		t.Fatalf("want Open, got %s", b.State())
	}

	*now = now.Add(1001 * time.Millisecond)
	if err := b.Execute(context.Background(), fail); !errors.Is(err, errBoom) {
		t.Fatal(err)
	}
	if b.State() != Open {
		t.Fatalf("want Open again after HALF_OPEN probe failure, got %s", b.State())
	}

	// Must still be OPEN immediately after (timeout restarted).
	if err := b.Execute(context.Background(), fail); !errors.As(err, new(*OpenError)) {
		t.Fatalf("want OpenError immediately after reopen, got %v", err)
	}
}

// TestBreakerClosedSuccessResetsFailures verifies §4.4: "In CLOSED, a
// success resets the failure counter to zero."
func TestBreakerClosedSuccessResetsFailures(t *testing.T) {
	b := NewBreaker(Settings{Name: "r", FailureThreshold: 3}, nil, nil)
	fail := func(context.Context) error { return errBoom }
	succeed := func(context.Context) error { return nil }

	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), succeed)

	// Two more failures should not trip (counter was reset), only a third
	// consecutive one would.
	_ = b.Execute(context.Background(), fail)
	_ = b.Execute(context.Background(), fail)
	if b.State() != Closed {
		t.Fatalf("want Closed, got %s", b.State())
	}
}

func TestRegistryMemoizesByName(t *testing.T) {
	r := NewRegistry(Settings{FailureThreshold: 5, SuccessThreshold: 2, Timeout: time.Second}, nil, nil)
	a := r.Get("x", Settings{})
	b := r.Get("x", Settings{FailureThreshold: 99})
	if a != b {
		t.Fatal("want same breaker instance for same name")
	}
	if a.settings.FailureThreshold != 5 {
		t.Fatalf("want first-registration thresholds to stick, got %d", a.settings.FailureThreshold)
	}
}

func TestRegistryResetAll(t *testing.T) {
	r := NewRegistry(Settings{FailureThreshold: 1}, nil, nil)
	b := r.Get("svc", Settings{})
	_ = b.Execute(context.Background(), func(context.Context) error { return errBoom })
	if b.State() != Open {
		t.Fatalf("want Open, got %s", b.State())
	}
	r.ResetAll(context.Background())
	if b.State() != Closed {
		t.Fatalf("want Closed after ResetAll, got %s", b.State())
	}
	summary := r.Summary()
	if summary[Closed] != 1 {
		t.Fatalf("want 1 closed breaker, got %+v", summary)
	}
}
