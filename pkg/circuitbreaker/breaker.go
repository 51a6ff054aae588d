package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"github.com/opencode-ai/controlplane/internal/hooks"
	"github.com/opencode-ai/controlplane/internal/telemetry"
)

// Settings configures a single Breaker. Zero-valued fields fall back to the
// documented spec defaults (§4.4).
type Settings struct {
	// Name identifies the guarded resource (provider, key, endpoint).
	Name string
	// FailureThreshold is the number of consecutive failures in CLOSED
	// that trips the breaker to OPEN. Default 5.
	FailureThreshold int
	// SuccessThreshold is the number of consecutive successes in HALF_OPEN
	// that closes the breaker. Default 2.
	SuccessThreshold int
	// Timeout is how long the breaker stays OPEN before allowing a probe.
	// Default 30s.
	Timeout time.Duration
	// Clock supplies the current time; defaults to time.Now. Tests inject a
	// fake clock to exercise timeout transitions deterministically.
	Clock func() time.Time
}

func (s Settings) withDefaults() Settings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold <= 0 {
		s.SuccessThreshold = 2
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
	if s.Clock == nil {
		s.Clock = time.Now
	}
	return s
}

// Breaker implements the per-resource three-state machine described in
// §4.4. It is safe for concurrent use; state transitions are linearized by
// a single mutex (§5 Ordering guarantees: "Circuit state transitions are
// linearizable per breaker").
type Breaker struct {
	settings Settings
	bus      hooks.Bus
	logger   telemetry.Logger

	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	consecutiveSuccess  int
	lastFailure         time.Time
	nextAttempt         time.Time
}

// NewBreaker constructs a Breaker in the CLOSED state.
func NewBreaker(settings Settings, bus hooks.Bus, logger telemetry.Logger) *Breaker {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Breaker{
		settings: settings.withDefaults(),
		bus:      bus,
		logger:   logger,
		state:    Closed,
	}
}

// Name returns the breaker's resource name.
func (b *Breaker) Name() string { return b.settings.Name }

// State returns the current state. The OPEN -> HALF_OPEN transition is lazy
// (triggered by the next call attempt, §4.4), so a call to State alone does
// not advance the state machine; Execute is what decides whether enough
// time has elapsed to probe.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn if the breaker allows it, and records the outcome. In
// OPEN (before the timeout elapses) fn is never invoked and Execute returns
// an *OpenError immediately (§4.4 Invariants).
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.before(ctx); err != nil {
		return err
	}
	err := fn(ctx)
	b.after(ctx, err)
	return err
}

// before decides whether the call may proceed, performing the lazy
// OPEN -> HALF_OPEN transition when the timeout has elapsed.
func (b *Breaker) before(ctx context.Context) error {
	now := b.settings.Clock()

	b.mu.Lock()
	switch b.state {
	case Open:
		if now.Before(b.nextAttempt) {
			retryAfter := b.nextAttempt.Sub(now)
			b.mu.Unlock()
			return &OpenError{Name: b.settings.Name, RetryAfter: retryAfter}
		}
		// Timeout elapsed: this call becomes the HALF_OPEN probe.
		b.transitionLocked(ctx, HalfOpen, "timeout elapsed")
	case HalfOpen, Closed:
		// fall through, call proceeds
	}
	b.mu.Unlock()
	return nil
}

// after records the call outcome and advances the state machine.
func (b *Breaker) after(ctx context.Context, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.onSuccessLocked(ctx)
		return
	}
	b.onFailureLocked(ctx)
}

func (b *Breaker) onSuccessLocked(ctx context.Context) {
	switch b.state {
	case Closed:
		b.consecutiveFailures = 0
	case HalfOpen:
		b.consecutiveSuccess++
		if b.consecutiveSuccess >= b.settings.SuccessThreshold {
			b.transitionLocked(ctx, Closed, "success threshold reached")
		}
	case Open:
		// Unreachable: before() never lets a call through while OPEN and
		// the timeout has not elapsed, and a proceeding call was already
		// moved to HALF_OPEN.
	}
}

func (b *Breaker) onFailureLocked(ctx context.Context) {
	now := b.settings.Clock()
	b.lastFailure = now

	switch b.state {
	case Closed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.settings.FailureThreshold {
			b.nextAttempt = now.Add(b.settings.Timeout)
			b.transitionLocked(ctx, Open, "failure threshold reached")
		}
	case HalfOpen:
		b.nextAttempt = now.Add(b.settings.Timeout)
		b.transitionLocked(ctx, Open, "probe failed")
	case Open:
		// Unreachable, see onSuccessLocked.
	}
}

// transitionLocked must be called with mu held. It updates state and
// resets the counters appropriate to the new state, then notifies
// observers. Observer failures never affect the transition (§4.4
// Notification): Bus.Publish already isolates subscriber panics/errors.
func (b *Breaker) transitionLocked(ctx context.Context, to State, reason string) {
	from := b.state
	b.state = to

	switch to {
	case HalfOpen:
		b.consecutiveSuccess = 0
	case Closed:
		b.consecutiveFailures = 0
		b.consecutiveSuccess = 0
	case Open:
		// consecutiveFailures/consecutiveSuccess retained for observability
		// until the next CLOSED transition; they're irrelevant while OPEN.
	}

	b.logger.Info(ctx, "circuit breaker transition",
		"breaker", b.settings.Name, "from", from.String(), "to", to.String(), "reason", reason)

	if b.bus != nil {
		b.bus.Publish(ctx, hooks.Event{
			Type:   hooks.EventCircuitStateChanged,
			Name:   b.settings.Name,
			From:   from.String(),
			To:     to.String(),
			Reason: reason,
		})
	}
}

// reset forces the breaker back to CLOSED with counters cleared, used by
// Registry.ResetAll.
func (b *Breaker) reset(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Closed && b.consecutiveFailures == 0 {
		return
	}
	b.transitionLocked(ctx, Closed, "registry reset")
}
