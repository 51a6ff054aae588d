// Package quota implements the Quota Manager: per-provider usage
// accounting, threshold classification, and fallback candidate selection.
package quota

import "time"

// QuotaType classifies how a provider's period and limit are interpreted.
type QuotaType string

const (
	QuotaMonthly      QuotaType = "monthly"
	QuotaDaily        QuotaType = "daily"
	QuotaRequestBased QuotaType = "request-based"
	QuotaUnlimited    QuotaType = "unlimited"
)

// Status classifies headroom against the configured thresholds, ordered
// for ranking healthy-first: unlimited(-1) < healthy(0) < warning(1) <
// critical(2) < exhausted(3).
type Status string

const (
	StatusUnlimited Status = "unlimited"
	StatusHealthy   Status = "healthy"
	StatusWarning   Status = "warning"
	StatusCritical  Status = "critical"
	StatusExhausted Status = "exhausted"
)

// rank returns the ordering key described in §4.2 "Classification rules".
func (s Status) rank() int {
	switch s {
	case StatusUnlimited:
		return -1
	case StatusHealthy:
		return 0
	case StatusWarning:
		return 1
	case StatusCritical:
		return 2
	case StatusExhausted:
		return 3
	default:
		return 99
	}
}

// ProviderConfig is the registration payload for setup_provider (§3
// ProviderQuota, §4.2 Public contract).
type ProviderConfig struct {
	ProviderID        string
	Type              QuotaType
	Limit             *int64 // nullable positive integer; nil means unlimited
	WarningThreshold  float64
	CriticalThreshold float64
}

// validate enforces the §3 invariant warning <= critical <= 1.
func (c ProviderConfig) validate() error {
	if c.ProviderID == "" {
		return &ValidationError{Field: "provider_id", Reason: "must not be empty"}
	}
	if c.WarningThreshold < 0 || c.WarningThreshold > 1 {
		return &ValidationError{Field: "warning_threshold", Reason: "must be in [0,1]"}
	}
	if c.CriticalThreshold < c.WarningThreshold || c.CriticalThreshold > 1 {
		return &ValidationError{Field: "critical_threshold", Reason: "must satisfy warning <= critical <= 1"}
	}
	if c.Limit != nil && *c.Limit <= 0 {
		return &ValidationError{Field: "limit", Reason: "must be a positive integer when set"}
	}
	return nil
}

// UsageReport is the input to record_usage (§4.2 Public contract).
type UsageReport struct {
	ProviderID string
	ModelID    string
	SessionID  string
	TokensIn   int64
	TokensOut  int64
	Cost       *float64
}

// UsageRecord is the immutable persisted form of a UsageReport (§3).
type UsageRecord struct {
	ID         string
	ProviderID string
	ModelID    string
	SessionID  string
	TokensIn   int64
	TokensOut  int64
	Cost       *float64
	Timestamp  time.Time
}

// TokensTotal derives tokens-total = in+out (§3 UsageRecord).
func (u UsageRecord) TokensTotal() int64 { return u.TokensIn + u.TokensOut }

// Snapshot is the derived, on-demand classification of a provider's
// current-period usage (§3 QuotaSnapshot).
type Snapshot struct {
	ProviderID          string
	TokensUsed          int64
	TokensRemaining     int64
	PercentUsed         float64
	Status              Status
	ComputedAt          time.Time
	RequestRateExceeded bool
}

// RotatorState summarizes key-rotator health for rotator-risk composition
// (§4.2 "Rotator-risk composition"). DeadKeys count fully,
// CooldownKeys count half: risk = (dead + 0.5*cooldown) / total.
type RotatorState struct {
	TotalKeys    int
	DeadKeys     int
	CooldownKeys int
}

// Risk computes rotator_risk = dead_keys/total_keys with cooldown keys
// counted half, per §4.2.
func (r RotatorState) Risk() float64 {
	if r.TotalKeys <= 0 {
		return 0
	}
	return (float64(r.DeadKeys) + 0.5*float64(r.CooldownKeys)) / float64(r.TotalKeys)
}

// QuotaFactor records one provider's contribution to a RoutingDecision's
// reasoning (§3 RoutingDecision).
type QuotaFactor struct {
	Provider string
	Reason   string
	Percent  float64
}

// RoutingDecision is written once per routing call and never mutated (§3).
type RoutingDecision struct {
	ID               string
	SessionID        string
	TaskID           string
	RequestedCategory string
	RequestedSkills  []string
	OriginalSelection string
	FinalSelection   string
	QuotaFactors     []QuotaFactor
	FallbackApplied  bool
	Reason           string
	Timestamp        time.Time
}

// HealthyProvider is one entry of get_healthy_providers's result (§4.2).
type HealthyProvider struct {
	ProviderID  string
	PercentUsed float64
	Status      Status
}
