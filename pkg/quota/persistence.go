package quota

import (
	"context"
	"time"

	"github.com/opencode-ai/controlplane/internal/atomicfile"
)

// rateLimitsFile is the durable on-disk shape §6 assigns to rate-limits.json:
// `{providers:{id:{requests, tokensUsed, lastReset}}, models:{id:tokensUsed}}`.
type rateLimitsFile struct {
	SchemaVersion string                       `json:"schema_version"`
	Providers     map[string]providerUsageFile `json:"providers"`
	Models        map[string]int64             `json:"models"`
}

// providerUsageFile is one provider's rolling aggregate as persisted.
type providerUsageFile struct {
	Requests   int64     `json:"requests"`
	TokensUsed int64     `json:"tokensUsed"`
	LastReset  time.Time `json:"lastReset"`
}

// persist writes the full rolling aggregate to rate-limits.json atomically
// (§5 "in-memory updates plus bounded disk writes"). Best-effort: a failed
// write leaves the previous snapshot in place (atomicfile never partially
// overwrites), logged but not returned, since the in-memory state remains
// authoritative for the running process regardless of disk outcome.
func (m *Manager) persist() {
	if m.path == "" {
		return
	}

	m.mu.Lock()
	providers := make(map[string]providerUsageFile, len(m.providers))
	for id, st := range m.providers {
		providers[id] = providerUsageFile{
			Requests:   st.requestCount,
			TokensUsed: st.tokensUsed,
			LastReset:  st.periodStart,
		}
	}
	models := make(map[string]int64, len(m.modelUsage))
	for id, used := range m.modelUsage {
		models[id] = used
	}
	m.mu.Unlock()

	if err := atomicfile.WriteJSON(m.path, rateLimitsFile{
		SchemaVersion: "1.1.0",
		Providers:     providers,
		Models:        models,
	}); err != nil {
		m.logger.Warn(context.Background(), "quota rate-limits.json persist failed", "path", m.path, "error", err)
	}
}

// SQLSink optionally mirrors accounting writes into the provider_quotas/
// api_usage/routing_decisions tables §6 assigns to workflow.db, written by
// the Workflow Engine's process. The Quota Manager never opens that
// database itself — a caller that also owns a *store.Store passes it here
// (pkg/workflow/store.Store satisfies this structurally) so the tables are
// exercised rather than left dead. See Manager.SetSQLSink.
type SQLSink interface {
	UpsertProviderQuota(ctx context.Context, cfg ProviderConfig) error
	InsertUsageRecord(ctx context.Context, rec UsageRecord) error
	InsertRoutingDecision(ctx context.Context, d RoutingDecision) error
}
