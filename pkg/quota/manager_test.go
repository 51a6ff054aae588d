package quota

import (
	"context"
	"testing"
	"time"
)

func ptr(i int64) *int64 { return &i }

func TestClassificationRules(t *testing.T) {
	cases := []struct {
		percent, warning, critical float64
		want                       Status
	}{
		{0.1, 0.8, 0.9, StatusHealthy},
		{0.8, 0.8, 0.9, StatusWarning},
		{0.85, 0.8, 0.9, StatusWarning},
		{0.9, 0.8, 0.9, StatusCritical},
		{0.99, 0.8, 0.9, StatusCritical},
		{1.0, 0.8, 0.9, StatusExhausted},
		{1.5, 0.8, 0.9, StatusExhausted},
	}
	for _, c := range cases {
		if got := classify(c.percent, c.warning, c.critical); got != c.want {
			t.Errorf("classify(%v, %v, %v) = %v, want %v", c.percent, c.warning, c.critical, got, c.want)
		}
	}
}

// TestRecordUsageAggregation verifies invariant 4: record_usage(x);
// record_usage(y); get_quota_status(p) returns tokens_used = x.total +
// y.total for any order within the same period.
func TestRecordUsageAggregation(t *testing.T) {
	ctx := context.Background()
	m := NewManager("", nil, nil, nil)
	if err := m.SetupProvider(ctx, ProviderConfig{ProviderID: "p1", Type: QuotaMonthly, Limit: ptr(1000), WarningThreshold: 0.8, CriticalThreshold: 0.9}); err != nil {
		t.Fatal(err)
	}

	if _, err := m.RecordUsage(ctx, UsageReport{ProviderID: "p1", TokensIn: 10, TokensOut: 5}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RecordUsage(ctx, UsageReport{ProviderID: "p1", TokensIn: 20, TokensOut: 0}); err != nil {
		t.Fatal(err)
	}

	snap := m.GetQuotaStatus(ctx, "p1")
	if snap == nil {
		t.Fatal("want snapshot, got nil")
	}
	if snap.TokensUsed != 35 {
		t.Fatalf("want tokens_used=35, got %d", snap.TokensUsed)
	}
}

func TestGetQuotaStatusUnknownProvider(t *testing.T) {
	m := NewManager("", nil, nil, nil)
	if snap := m.GetQuotaStatus(context.Background(), "ghost"); snap != nil {
		t.Fatalf("want nil for unknown provider, got %+v", snap)
	}
}

func TestUnlimitedProviderStatus(t *testing.T) {
	ctx := context.Background()
	m := NewManager("", nil, nil, nil)
	if err := m.SetupProvider(ctx, ProviderConfig{ProviderID: "free", Type: QuotaUnlimited}); err != nil {
		t.Fatal(err)
	}
	snap := m.GetQuotaStatus(ctx, "free")
	if snap.Status != StatusUnlimited {
		t.Fatalf("want unlimited, got %s", snap.Status)
	}
}

// TestQuotaFallbackScenario exercises S3: P1 near critical, P2 healthy;
// suggest_fallback must rank P2 ahead of the excluded P1.
func TestQuotaFallbackScenario(t *testing.T) {
	ctx := context.Background()
	m := NewManager("", nil, nil, nil)
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(m.SetupProvider(ctx, ProviderConfig{ProviderID: "P1", Type: QuotaMonthly, Limit: ptr(1000), WarningThreshold: 0.7, CriticalThreshold: 0.9}))
	must(m.SetupProvider(ctx, ProviderConfig{ProviderID: "P2", Type: QuotaMonthly, Limit: ptr(1000), WarningThreshold: 0.7, CriticalThreshold: 0.9}))

	_, err := m.RecordUsage(ctx, UsageReport{ProviderID: "P1", TokensIn: 950, TokensOut: 0})
	must(err)
	_, err = m.RecordUsage(ctx, UsageReport{ProviderID: "P2", TokensIn: 100, TokensOut: 0})
	must(err)

	_, err = m.RecordUsage(ctx, UsageReport{ProviderID: "P1", TokensIn: 10, TokensOut: 0})
	must(err)

	p1 := m.GetQuotaStatus(ctx, "P1")
	if p1.Status != StatusCritical {
		t.Fatalf("want P1 critical, got %s", p1.Status)
	}

	candidates := m.SuggestFallback(ctx, []string{"P1"})
	if len(candidates) != 1 || candidates[0].ProviderID != "P2" {
		t.Fatalf("want [P2], got %+v", candidates)
	}

	m.LogRoutingDecision(ctx, RoutingDecision{
		RequestedCategory: "chat",
		OriginalSelection: "P1",
		FinalSelection:    "P2",
		FallbackApplied:   true,
		Reason:            "provider:P1 status:critical",
		QuotaFactors:      []QuotaFactor{{Provider: "P1", Reason: "critical", Percent: p1.PercentUsed}},
	})

	decisions := m.Decisions()
	if len(decisions) != 1 {
		t.Fatalf("want 1 routing decision, got %d", len(decisions))
	}
	if !decisions[0].FallbackApplied || decisions[0].FinalSelection != "P2" {
		t.Fatalf("unexpected decision: %+v", decisions[0])
	}
}

// TestHealthyProvidersSortedAscending verifies invariant 5.
func TestHealthyProvidersSortedAscending(t *testing.T) {
	ctx := context.Background()
	m := NewManager("", nil, nil, nil)
	for _, p := range []struct {
		id   string
		used int64
	}{{"a", 900}, {"b", 100}, {"c", 500}} {
		if err := m.SetupProvider(ctx, ProviderConfig{ProviderID: p.id, Type: QuotaMonthly, Limit: ptr(1000), WarningThreshold: 0.95, CriticalThreshold: 0.99}); err != nil {
			t.Fatal(err)
		}
		if _, err := m.RecordUsage(ctx, UsageReport{ProviderID: p.id, TokensIn: p.used}); err != nil {
			t.Fatal(err)
		}
	}

	healthy := m.GetHealthyProviders(ctx)
	for i := 1; i < len(healthy); i++ {
		if healthy[i].PercentUsed < healthy[i-1].PercentUsed {
			t.Fatalf("not ascending: %+v", healthy)
		}
	}
}

func TestRotatorRiskComposition(t *testing.T) {
	ctx := context.Background()
	m := NewManager("", nil, nil, nil)
	if err := m.SetupProvider(ctx, ProviderConfig{ProviderID: "p", Type: QuotaMonthly, Limit: ptr(1000), WarningThreshold: 0.5, CriticalThreshold: 0.9}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RecordUsage(ctx, UsageReport{ProviderID: "p", TokensIn: 10}); err != nil {
		t.Fatal(err)
	}
	// provider_percent_used is low (0.01); rotator risk (2 dead of 4 =
	// 0.5) must dominate per max(provider_percent, rotator_risk).
	m.SetRotatorState("p", &RotatorState{TotalKeys: 4, DeadKeys: 2})

	snap := m.GetQuotaStatus(ctx, "p")
	if snap.PercentUsed != 0.5 {
		t.Fatalf("want rotator risk 0.5 to dominate, got %v", snap.PercentUsed)
	}
	if snap.Status != StatusWarning {
		t.Fatalf("want warning at composed percent 0.5 (>= warning 0.5), got %s", snap.Status)
	}
}

func TestMonthlyRollover(t *testing.T) {
	ctx := context.Background()
	jan := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	now := jan
	clock := func() time.Time { return now }

	m := NewManager("", nil, nil, clock)
	if err := m.SetupProvider(ctx, ProviderConfig{ProviderID: "p", Type: QuotaMonthly, Limit: ptr(1000), WarningThreshold: 0.5, CriticalThreshold: 0.9}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.RecordUsage(ctx, UsageReport{ProviderID: "p", TokensIn: 900}); err != nil {
		t.Fatal(err)
	}
	if snap := m.GetQuotaStatus(ctx, "p"); snap.Status != StatusCritical {
		t.Fatalf("want critical before rollover, got %s", snap.Status)
	}

	now = time.Date(2026, 2, 1, 0, 0, 1, 0, time.UTC)
	snap := m.GetQuotaStatus(ctx, "p")
	if snap.TokensUsed != 0 {
		t.Fatalf("want usage reset after monthly rollover, got %d", snap.TokensUsed)
	}
	if snap.Status != StatusHealthy {
		t.Fatalf("want healthy after rollover, got %s", snap.Status)
	}
}

func TestValidationRejectsBadThresholds(t *testing.T) {
	m := NewManager("", nil, nil, nil)
	err := m.SetupProvider(context.Background(), ProviderConfig{
		ProviderID:        "bad",
		WarningThreshold:  0.9,
		CriticalThreshold: 0.5,
	})
	if err == nil {
		t.Fatal("want validation error when critical < warning")
	}
}
