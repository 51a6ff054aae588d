package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/opencode-ai/controlplane/pkg/quota"
)

// providerQuotaRow is the durable row for a ProviderConfig registration
// (§6 `provider_quotas`), keyed by provider_id so re-registration upserts
// rather than accumulating stale rows.
type providerQuotaRow struct {
	ProviderID        string    `db:"provider_id"`
	QuotaType         string    `db:"quota_type"`
	QuotaLimit        *int64    `db:"quota_limit"`
	PeriodDescriptor  string    `db:"period_descriptor"`
	WarningThreshold  float64   `db:"warning_threshold"`
	CriticalThreshold float64   `db:"critical_threshold"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// apiUsageRow is the durable row for one UsageRecord (§6 `api_usage`).
type apiUsageRow struct {
	ID         string    `db:"id"`
	ProviderID string    `db:"provider_id"`
	ModelID    string    `db:"model_id"`
	SessionID  string    `db:"session_id"`
	TokensIn   int64     `db:"tokens_in"`
	TokensOut  int64     `db:"tokens_out"`
	Cost       *float64  `db:"cost"`
	CreatedAt  time.Time `db:"created_at"`
}

// routingDecisionRow is the durable row for one RoutingDecision (§6
// `routing_decisions`), written once and never mutated.
type routingDecisionRow struct {
	ID                string    `db:"id"`
	SessionID         string    `db:"session_id"`
	TaskID            string    `db:"task_id"`
	RequestedCategory string    `db:"requested_category"`
	OriginalSelection string    `db:"original_selection"`
	FinalSelection    string    `db:"final_selection"`
	QuotaFactors      []byte    `db:"quota_factors"`
	FallbackApplied   bool      `db:"fallback_applied"`
	Reason            string    `db:"reason"`
	CreatedAt         time.Time `db:"created_at"`
}

// UpsertProviderQuota persists cfg into provider_quotas. Satisfies
// quota.SQLSink so the Quota Manager can write through to workflow.db
// without importing this package.
func (s *Store) UpsertProviderQuota(ctx context.Context, cfg quota.ProviderConfig) error {
	row := providerQuotaRow{
		ProviderID:        cfg.ProviderID,
		QuotaType:         string(cfg.Type),
		QuotaLimit:        cfg.Limit,
		PeriodDescriptor:  string(cfg.Type),
		WarningThreshold:  cfg.WarningThreshold,
		CriticalThreshold: cfg.CriticalThreshold,
		UpdatedAt:         time.Now(),
	}
	_, err := s.DB.NamedExecContext(ctx, `
		INSERT INTO provider_quotas (provider_id, quota_type, quota_limit, period_descriptor, warning_threshold, critical_threshold, updated_at)
		VALUES (:provider_id, :quota_type, :quota_limit, :period_descriptor, :warning_threshold, :critical_threshold, :updated_at)
		ON CONFLICT(provider_id) DO UPDATE SET
			quota_type = excluded.quota_type,
			quota_limit = excluded.quota_limit,
			period_descriptor = excluded.period_descriptor,
			warning_threshold = excluded.warning_threshold,
			critical_threshold = excluded.critical_threshold,
			updated_at = excluded.updated_at`, row)
	if err != nil {
		return &StorageError{Path: cfg.ProviderID, Op: "upsert-provider-quota", Cause: err}
	}
	return nil
}

// InsertUsageRecord persists rec into api_usage. Satisfies quota.SQLSink.
func (s *Store) InsertUsageRecord(ctx context.Context, rec quota.UsageRecord) error {
	row := apiUsageRow{
		ID:         rec.ID,
		ProviderID: rec.ProviderID,
		ModelID:    rec.ModelID,
		SessionID:  rec.SessionID,
		TokensIn:   rec.TokensIn,
		TokensOut:  rec.TokensOut,
		Cost:       rec.Cost,
		CreatedAt:  rec.Timestamp,
	}
	_, err := s.DB.NamedExecContext(ctx, `
		INSERT INTO api_usage (id, provider_id, model_id, session_id, tokens_in, tokens_out, cost, created_at)
		VALUES (:id, :provider_id, :model_id, :session_id, :tokens_in, :tokens_out, :cost, :created_at)`, row)
	if err != nil {
		return &StorageError{Path: rec.ID, Op: "insert-api-usage", Cause: err}
	}
	return nil
}

// InsertRoutingDecision persists d into routing_decisions. Satisfies
// quota.SQLSink. quota_factors is the JSON-encoded []QuotaFactor; decoding
// it back is an observer's concern, not this store's.
func (s *Store) InsertRoutingDecision(ctx context.Context, d quota.RoutingDecision) error {
	factors, err := json.Marshal(d.QuotaFactors)
	if err != nil {
		return &StorageError{Path: d.ID, Op: "insert-routing-decision", Cause: err}
	}
	row := routingDecisionRow{
		ID:                d.ID,
		SessionID:         d.SessionID,
		TaskID:            d.TaskID,
		RequestedCategory: d.RequestedCategory,
		OriginalSelection: d.OriginalSelection,
		FinalSelection:    d.FinalSelection,
		QuotaFactors:      factors,
		FallbackApplied:   d.FallbackApplied,
		Reason:            d.Reason,
		CreatedAt:         d.Timestamp,
	}
	_, err = s.DB.NamedExecContext(ctx, `
		INSERT INTO routing_decisions (id, session_id, task_id, requested_category, original_selection, final_selection, quota_factors, fallback_applied, reason, created_at)
		VALUES (:id, :session_id, :task_id, :requested_category, :original_selection, :final_selection, :quota_factors, :fallback_applied, :reason, :created_at)`, row)
	if err != nil {
		return &StorageError{Path: d.ID, Op: "insert-routing-decision", Cause: err}
	}
	return nil
}
