package quota

import (
	"context"
	"testing"
)

func TestRequestBasedProviderFlagsOverRate(t *testing.T) {
	ctx := context.Background()
	limit := int64(2) // 2 requests per minute ceiling -> burst of 0... clamp to 1
	m := NewManager("", nil, nil, nil)
	if err := m.SetupProvider(ctx, ProviderConfig{
		ProviderID: "burst-provider", Type: QuotaRequestBased, Limit: &limit,
		WarningThreshold: 0.5, CriticalThreshold: 0.9,
	}); err != nil {
		t.Fatal(err)
	}

	var lastSnap *Snapshot
	for i := 0; i < 5; i++ {
		if _, err := m.RecordUsage(ctx, UsageReport{ProviderID: "burst-provider", TokensIn: 1, TokensOut: 1}); err != nil {
			t.Fatal(err)
		}
		lastSnap = m.GetQuotaStatus(ctx, "burst-provider")
	}
	if lastSnap == nil {
		t.Fatal("want a snapshot")
	}
	if !lastSnap.RequestRateExceeded {
		t.Fatalf("want request rate exceeded after bursting past the configured ceiling, got %+v", lastSnap)
	}
}
