package quota

import (
	"context"
	"path/filepath"
	"testing"
)

// TestManagerSurvivesRestart verifies correctness property (i): a
// near-exhausted provider must not reappear healthy after a restart,
// since the rolling aggregate is persisted to rate-limits.json.
func TestManagerSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rate-limits.json")

	m1 := NewManager(path, nil, nil, nil)
	if err := m1.SetupProvider(ctx, ProviderConfig{
		ProviderID: "p1", Type: QuotaMonthly, Limit: ptr(1000), WarningThreshold: 0.8, CriticalThreshold: 0.9,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := m1.RecordUsage(ctx, UsageReport{ProviderID: "p1", TokensIn: 950, ModelID: "claude"}); err != nil {
		t.Fatal(err)
	}
	snap := m1.GetQuotaStatus(ctx, "p1")
	if snap.Status != StatusCritical {
		t.Fatalf("want critical before restart, got %s", snap.Status)
	}

	// A fresh Manager simulating a process restart, same path.
	m2 := NewManager(path, nil, nil, nil)
	if err := m2.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := m2.SetupProvider(ctx, ProviderConfig{
		ProviderID: "p1", Type: QuotaMonthly, Limit: ptr(1000), WarningThreshold: 0.8, CriticalThreshold: 0.9,
	}); err != nil {
		t.Fatal(err)
	}
	snap2 := m2.GetQuotaStatus(ctx, "p1")
	if snap2 == nil {
		t.Fatal("want a restored snapshot after restart")
	}
	if snap2.Status != StatusCritical {
		t.Fatalf("want critical to survive restart, got %s (tokens_used=%d)", snap2.Status, snap2.TokensUsed)
	}
	if snap2.TokensUsed != 950 {
		t.Fatalf("want tokens_used=950 restored, got %d", snap2.TokensUsed)
	}
}

// TestManagerLoadTreatsMissingFileAsNoData verifies first-boot behavior:
// no rate-limits.json yet is not an error.
func TestManagerLoadTreatsMissingFileAsNoData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rate-limits.json")
	m := NewManager(path, nil, nil, nil)
	if err := m.Load(); err != nil {
		t.Fatalf("want missing file tolerated, got %v", err)
	}
}

// fakeSQLSink is an in-memory stand-in for a *store.Store, letting the
// Quota Manager's write-through be exercised without the workflow package
// (quota must not import store, to avoid a dependency cycle).
type fakeSQLSink struct {
	quotas    []ProviderConfig
	usage     []UsageRecord
	decisions []RoutingDecision
}

func (f *fakeSQLSink) UpsertProviderQuota(ctx context.Context, cfg ProviderConfig) error {
	f.quotas = append(f.quotas, cfg)
	return nil
}

func (f *fakeSQLSink) InsertUsageRecord(ctx context.Context, rec UsageRecord) error {
	f.usage = append(f.usage, rec)
	return nil
}

func (f *fakeSQLSink) InsertRoutingDecision(ctx context.Context, d RoutingDecision) error {
	f.decisions = append(f.decisions, d)
	return nil
}

func TestManagerWritesThroughSQLSink(t *testing.T) {
	ctx := context.Background()
	sink := &fakeSQLSink{}
	m := NewManager("", nil, nil, nil)
	m.SetSQLSink(sink)

	if err := m.SetupProvider(ctx, ProviderConfig{ProviderID: "p1", Type: QuotaUnlimited}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RecordUsage(ctx, UsageReport{ProviderID: "p1", TokensIn: 1}); err != nil {
		t.Fatal(err)
	}
	m.LogRoutingDecision(ctx, RoutingDecision{FinalSelection: "p1"})

	if len(sink.quotas) != 1 || len(sink.usage) != 1 || len(sink.decisions) != 1 {
		t.Fatalf("want one write through each sink method, got %+v", sink)
	}
}
