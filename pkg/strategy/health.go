package strategy

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/opencode-ai/controlplane/internal/atomicfile"
)

// Health is the persisted bypass-tracking record for one strategy (§3
// StrategyHealth).
type Health struct {
	Name                string    `json:"name"`
	TotalInvocations    int64     `json:"total_invocations"`
	TotalFailures       int64     `json:"total_failures"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	BypassUntil         time.Time `json:"bypass_until"`
	BypassCount         int64     `json:"bypass_count"`
}

// healthFile is the schema-versioned on-disk shape for the strategy health
// store (§6 External interfaces: "strategy health file").
type healthFile struct {
	SchemaVersion string            `json:"schema_version"`
	Strategies    map[string]Health `json:"strategies"`
}

// HealthTracker owns StrategyHealth bookkeeping and its atomic persistence
// (§4.3 "Health tracking"). It is safe for concurrent use.
type HealthTracker struct {
	mu               sync.Mutex
	path             string
	failureThreshold int
	cooldown         time.Duration
	clock            func() time.Time
	records          map[string]*Health
}

// NewHealthTracker constructs a HealthTracker. path is the atomic JSON
// store; an empty path disables persistence (useful for tests). clock
// defaults to time.Now.
func NewHealthTracker(path string, failureThreshold int, cooldown time.Duration, clock func() time.Time) *HealthTracker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	if clock == nil {
		clock = time.Now
	}
	return &HealthTracker{
		path:             path,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		clock:            clock,
		records:          make(map[string]*Health),
	}
}

// Load reads the persisted health file, tolerating its absence (§9 Design
// Notes centralizes this through atomicfile; §5 Open Question 3 governs
// schema migration).
func (h *HealthTracker) Load() error {
	if h.path == "" {
		return nil
	}
	var f healthFile
	if err := atomicfile.ReadJSON(h.path, &f); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for name, rec := range f.Strategies {
		copyRec := rec
		h.records[name] = &copyRec
	}
	return nil
}

// Bypassed reports whether name is currently under bypass as of now.
func (h *HealthTracker) Bypassed(name string, now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	rec, ok := h.records[name]
	if !ok {
		return false
	}
	return now.Before(rec.BypassUntil)
}

// RecordSuccess records a successful invocation. On the first success
// after cooldown, consecutive failures reset to zero (§4.3).
func (h *HealthTracker) RecordSuccess(ctx context.Context, name string) {
	h.mu.Lock()
	rec := h.recordLocked(name)
	rec.TotalInvocations++
	rec.ConsecutiveFailures = 0
	h.mu.Unlock()
	h.persist()
}

// RecordFailure records a failed invocation, setting bypass_until and
// incrementing bypass_count once consecutive_failures reaches the
// configured threshold (§4.3).
func (h *HealthTracker) RecordFailure(ctx context.Context, name string) {
	now := h.clock()

	h.mu.Lock()
	rec := h.recordLocked(name)
	rec.TotalInvocations++
	rec.TotalFailures++
	rec.ConsecutiveFailures++
	if rec.ConsecutiveFailures >= h.failureThreshold {
		rec.BypassUntil = now.Add(h.cooldown)
		rec.BypassCount++
	}
	h.mu.Unlock()
	h.persist()
}

// Snapshot returns a copy of the health record for name, or the zero value
// if none exists yet.
func (h *HealthTracker) Snapshot(name string) Health {
	h.mu.Lock()
	defer h.mu.Unlock()
	if rec, ok := h.records[name]; ok {
		return *rec
	}
	return Health{Name: name}
}

func (h *HealthTracker) recordLocked(name string) *Health {
	rec, ok := h.records[name]
	if !ok {
		rec = &Health{Name: name}
		h.records[name] = rec
	}
	return rec
}

// persist writes the full health map atomically after each cycle (§4.3:
// "Health is persisted to a single file atomically ... after each cycle").
func (h *HealthTracker) persist() {
	if h.path == "" {
		return
	}
	h.mu.Lock()
	out := make(map[string]Health, len(h.records))
	for name, rec := range h.records {
		out[name] = *rec
	}
	h.mu.Unlock()

	// Best-effort: a failed write leaves the previous snapshot in place
	// (atomicfile never partially overwrites) and the write error is
	// discarded; the orchestrator's own cycle does not treat persistence
	// failure as fatal
	// since StrategyHealth is advisory across restarts, not authoritative
	// for the current process.
	_ = atomicfile.WriteJSON(h.path, healthFile{SchemaVersion: "1.1.0", Strategies: out})
}
