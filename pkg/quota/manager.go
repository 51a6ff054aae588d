package quota

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opencode-ai/controlplane/internal/atomicfile"
	"github.com/opencode-ai/controlplane/internal/hooks"
	"github.com/opencode-ai/controlplane/internal/telemetry"
)

// providerState is the mutable per-provider bookkeeping the Manager owns.
// requestCount backs request-based quotas, which never roll over (§4.2
// "Periods").
type providerState struct {
	cfg ProviderConfig

	periodStart  time.Time
	tokensUsed   int64
	requestCount int64

	rotator      *RotatorState
	rateSampler  *requestRateSampler
	lastOverRate bool
}

// Manager implements the Quota Manager public contract (§4.2). All
// mutation goes through a single mutex; the spec requires in-memory
// updates plus bounded disk writes with no suspension on network I/O (§5
// Suspension points) — the rolling aggregate is persisted to rate-limits.json
// via internal/atomicfile after every SetupProvider and RecordUsage call
// (SetRotatorState and LogRoutingDecision do not write it) so a near-exhausted
// provider does not reappear healthy after a restart (§6, correctness
// property (i)).
type Manager struct {
	bus    hooks.Bus
	logger telemetry.Logger
	clock  func() time.Time
	path   string
	sql    SQLSink

	mu         sync.Mutex
	providers  map[string]*providerState
	records    []UsageRecord
	decisions  []RoutingDecision
	modelUsage map[string]int64
}

// NewManager constructs a Manager. path is the rate-limits.json atomic
// store (§6 Durable files); an empty path disables persistence, matching
// the convention used by strategy.HealthTracker and plugin.Supervisor.
// clock defaults to time.Now; tests inject a fake clock to exercise period
// rollover deterministically.
func NewManager(path string, bus hooks.Bus, logger telemetry.Logger, clock func() time.Time) *Manager {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if clock == nil {
		clock = time.Now
	}
	return &Manager{
		bus:        bus,
		logger:     logger,
		clock:      clock,
		path:       path,
		providers:  make(map[string]*providerState),
		modelUsage: make(map[string]int64),
	}
}

// SetSQLSink attaches an optional writer for the provider_quotas/api_usage/
// routing_decisions tables §6 assigns to workflow.db. The Quota Manager
// itself never opens that database; a caller that also owns a
// *store.Store passes it here (it satisfies SQLSink structurally) so
// accounting data lands in both the Quota Manager's own rate-limits.json
// and the Workflow Engine's queryable audit surface. Writes through the
// sink are best-effort: a failure is logged but never fails the caller's
// record_usage/setup_provider/log_routing_decision call.
func (m *Manager) SetSQLSink(sink SQLSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sql = sink
}

// Load restores the rolling aggregate from rate-limits.json, tolerating
// its absence on first boot. Callers should load before traffic starts;
// SetupProvider and RecordUsage merge into whatever Load already
// populated rather than resetting it (§4.2 "overwrites on change without
// resetting accumulated usage").
func (m *Manager) Load() error {
	if m.path == "" {
		return nil
	}
	var f rateLimitsFile
	if err := atomicfile.ReadJSON(m.path, &f); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, snap := range f.Providers {
		st := m.providerLocked(id, snap.LastReset)
		st.tokensUsed = snap.TokensUsed
		st.requestCount = snap.Requests
		st.periodStart = snap.LastReset
	}
	for model, used := range f.Models {
		m.modelUsage[model] = used
	}
	return nil
}

// SetupProvider registers quota type, limit, period, and thresholds.
// Idempotent on identical input; overwrites on change without resetting
// accumulated usage for the current period (§4.2 Public contract).
func (m *Manager) SetupProvider(ctx context.Context, cfg ProviderConfig) error {
	if err := cfg.validate(); err != nil {
		return err
	}

	m.mu.Lock()
	st, ok := m.providers[cfg.ProviderID]
	if !ok {
		st = &providerState{cfg: cfg, periodStart: m.clock()}
		st.rateSampler = rateSamplerFor(cfg)
		m.providers[cfg.ProviderID] = st
	} else {
		st.cfg = cfg
		st.rateSampler = rateSamplerFor(cfg)
	}
	sink := m.sql
	m.mu.Unlock()

	m.persist()
	if sink != nil {
		if err := sink.UpsertProviderQuota(ctx, cfg); err != nil {
			m.logger.Warn(ctx, "quota sql sink upsert-provider-quota failed", "provider", cfg.ProviderID, "error", err)
		}
	}
	return nil
}

// rateSamplerFor builds a request-rate observation sampler for
// request-based providers, treating the configured Limit as a
// requests-per-minute ceiling; other quota types don't need an
// instantaneous rate signal on top of their periodic rollover.
func rateSamplerFor(cfg ProviderConfig) *requestRateSampler {
	if cfg.Type != QuotaRequestBased || cfg.Limit == nil {
		return nil
	}
	return newRequestRateSampler(float64(*cfg.Limit) / 60.0)
}

// RecordUsage appends a UsageRecord and updates the in-memory rolling
// aggregate for the current period (§4.2 Public contract). Unknown
// providers are registered implicitly as unlimited so a misordered setup
// call never drops a usage report.
func (m *Manager) RecordUsage(ctx context.Context, report UsageReport) (UsageRecord, error) {
	if report.ProviderID == "" {
		return UsageRecord{}, &ValidationError{Field: "provider_id", Reason: "must not be empty"}
	}
	if report.TokensIn < 0 || report.TokensOut < 0 {
		return UsageRecord{}, &ValidationError{Field: "tokens", Reason: "must be non-negative"}
	}

	now := m.clock()
	rec := UsageRecord{
		ID:         uuid.NewString(),
		ProviderID: report.ProviderID,
		ModelID:    report.ModelID,
		SessionID:  report.SessionID,
		TokensIn:   report.TokensIn,
		TokensOut:  report.TokensOut,
		Cost:       report.Cost,
		Timestamp:  now,
	}

	m.mu.Lock()
	st := m.providerLocked(report.ProviderID, now)
	m.rolloverLocked(st, now)
	st.tokensUsed += rec.TokensTotal()
	st.requestCount++
	if st.rateSampler != nil {
		st.lastOverRate = st.rateSampler.observe()
	}
	m.records = append(m.records, rec)
	if rec.ModelID != "" {
		m.modelUsage[rec.ModelID] += rec.TokensTotal()
	}
	sink := m.sql
	m.mu.Unlock()

	m.persist()
	if sink != nil {
		if err := sink.InsertUsageRecord(ctx, rec); err != nil {
			m.logger.Warn(ctx, "quota sql sink insert-usage-record failed", "provider", report.ProviderID, "error", err)
		}
	}

	m.logger.Debug(ctx, "quota usage recorded",
		"provider", report.ProviderID, "tokens_total", rec.TokensTotal())
	return rec, nil
}

// GetQuotaStatus returns the current classification, or nil for unknown
// providers (§4.2 Public contract). Snapshot staleness is not cached here;
// Manager computes on demand, which trivially satisfies the "<= 500ms"
// staleness bound from §3.
func (m *Manager) GetQuotaStatus(ctx context.Context, providerID string) *Snapshot {
	now := m.clock()

	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.providers[providerID]
	if !ok {
		return nil
	}
	m.rolloverLocked(st, now)
	snap := m.snapshotLocked(st, now)
	return &snap
}

// GetHealthyProviders returns providers whose status is not exhausted,
// ordered by ascending percent-used (§4.2 Public contract, invariant 5).
func (m *Manager) GetHealthyProviders(ctx context.Context) []HealthyProvider {
	now := m.clock()

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]HealthyProvider, 0, len(m.providers))
	for id, st := range m.providers {
		m.rolloverLocked(st, now)
		snap := m.snapshotLocked(st, now)
		if snap.Status == StatusExhausted {
			continue
		}
		out = append(out, HealthyProvider{ProviderID: id, PercentUsed: snap.PercentUsed, Status: snap.Status})
	}
	sortHealthy(out)
	return out
}

// SuggestFallback returns the non-excluded, non-exhausted providers
// sorted by ascending percent-used (§4.2 Public contract).
func (m *Manager) SuggestFallback(ctx context.Context, exclude []string) []HealthyProvider {
	excluded := make(map[string]bool, len(exclude))
	for _, id := range exclude {
		excluded[id] = true
	}

	candidates := m.GetHealthyProviders(ctx)
	out := candidates[:0:0]
	for _, c := range candidates {
		if !excluded[c.ProviderID] {
			out = append(out, c)
		}
	}
	return out
}

// LogRoutingDecision appends a RoutingDecision (§4.2 Public contract,
// §3 "Written once per routing call, never mutated").
func (m *Manager) LogRoutingDecision(ctx context.Context, d RoutingDecision) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = m.clock()
	}

	m.mu.Lock()
	m.decisions = append(m.decisions, d)
	sink := m.sql
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(ctx, hooks.Event{
			Type:    hooks.EventOutcomeRecorded,
			Name:    d.FinalSelection,
			Reason:  d.Reason,
			Payload: d,
		})
	}
	if sink != nil {
		if err := sink.InsertRoutingDecision(ctx, d); err != nil {
			m.logger.Warn(ctx, "quota sql sink insert-routing-decision failed", "decision", d.ID, "error", err)
		}
	}
}

// SetRotatorState attaches key-rotator state used in rotator-risk
// composition (§4.2 "Rotator-risk composition"). A nil state clears any
// previously attached rotator signal.
func (m *Manager) SetRotatorState(providerID string, state *RotatorState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.providerLocked(providerID, m.clock())
	st.rotator = state
}

// Decisions returns a copy of every logged RoutingDecision, oldest first.
// Intended for test assertions and dashboards; callers must not mutate
// the slice's RoutingDecision.QuotaFactors/RequestedSkills in place.
func (m *Manager) Decisions() []RoutingDecision {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RoutingDecision, len(m.decisions))
	copy(out, m.decisions)
	return out
}

func (m *Manager) providerLocked(providerID string, now time.Time) *providerState {
	st, ok := m.providers[providerID]
	if !ok {
		st = &providerState{
			cfg:         ProviderConfig{ProviderID: providerID, Type: QuotaUnlimited},
			periodStart: now,
		}
		m.providers[providerID] = st
	}
	return st
}

// rolloverLocked detects and applies period rollover lazily, per §4.2
// "Periods": monthly resets at the start of each calendar month in UTC;
// daily at UTC midnight; request-based never resets.
func (m *Manager) rolloverLocked(st *providerState, now time.Time) {
	nowUTC := now.UTC()
	switch st.cfg.Type {
	case QuotaMonthly:
		boundary := time.Date(nowUTC.Year(), nowUTC.Month(), 1, 0, 0, 0, 0, time.UTC)
		if st.periodStart.UTC().Before(boundary) {
			st.tokensUsed = 0
			st.periodStart = boundary
		}
	case QuotaDaily:
		boundary := time.Date(nowUTC.Year(), nowUTC.Month(), nowUTC.Day(), 0, 0, 0, 0, time.UTC)
		if st.periodStart.UTC().Before(boundary) {
			st.tokensUsed = 0
			st.periodStart = boundary
		}
	case QuotaRequestBased, QuotaUnlimited:
		// Never resets automatically; caller must prune.
	}
}

// snapshotLocked computes the classification for st as of now, including
// rotator-risk composition (§4.2 "Classification rules",
// "Rotator-risk composition").
func (m *Manager) snapshotLocked(st *providerState, now time.Time) Snapshot {
	snap := Snapshot{ProviderID: st.cfg.ProviderID, ComputedAt: now}

	if st.cfg.Type == QuotaUnlimited || st.cfg.Limit == nil {
		snap.Status = StatusUnlimited
		snap.TokensUsed = st.tokensUsed
		return snap
	}

	var used int64
	if st.cfg.Type == QuotaRequestBased {
		used = st.requestCount
	} else {
		used = st.tokensUsed
	}

	limit := *st.cfg.Limit
	percent := float64(used) / float64(limit)

	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}

	if st.rotator != nil {
		if risk := st.rotator.Risk(); risk > percent {
			percent = risk
		}
	}

	snap.TokensUsed = used
	snap.TokensRemaining = remaining
	snap.PercentUsed = percent
	snap.Status = classify(percent, st.cfg.WarningThreshold, st.cfg.CriticalThreshold)
	snap.RequestRateExceeded = st.lastOverRate
	return snap
}

// classify implements §4.2's classification rules: p < warning -> healthy;
// warning <= p < critical -> warning; critical <= p < 1 -> critical;
// p >= 1 -> exhausted.
func classify(p, warning, critical float64) Status {
	switch {
	case p >= 1:
		return StatusExhausted
	case p >= critical:
		return StatusCritical
	case p >= warning:
		return StatusWarning
	default:
		return StatusHealthy
	}
}

func sortHealthy(items []HealthyProvider) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].PercentUsed != items[j].PercentUsed {
			return items[i].PercentUsed < items[j].PercentUsed
		}
		return items[i].Status.rank() < items[j].Status.rank()
	})
}
