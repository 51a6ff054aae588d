package plugin

import (
	"context"
	"testing"
)

// TestPluginQuarantineScenario exercises S5.
func TestPluginQuarantineScenario(t *testing.T) {
	ctx := context.Background()
	sup := NewSupervisor("", 2, nil, nil, nil)

	healthy := Sample{Name: "p1", Configured: true, Discovered: true, HeartbeatOK: true, DependencyOK: true}
	recs := sup.Evaluate(ctx, []Sample{healthy})
	if recs[0].Status != StatusHealthy || recs[0].Quarantine {
		t.Fatalf("want healthy, got %+v", recs[0])
	}

	noHeartbeat := healthy
	noHeartbeat.HeartbeatOK = false
	recs = sup.Evaluate(ctx, []Sample{noHeartbeat})
	if recs[0].Status != StatusDegraded || recs[0].ReasonCode != ReasonMissingHeartbeat || recs[0].Quarantine {
		t.Fatalf("want degraded/missing-heartbeat, not quarantined, got %+v", recs[0])
	}

	crashLoop := noHeartbeat
	crashLoop.CrashCount = 2
	recs = sup.Evaluate(ctx, []Sample{crashLoop})
	if !recs[0].Quarantine || recs[0].ReasonCode != ReasonCrashLoop {
		t.Fatalf("want quarantined crash-loop, got %+v", recs[0])
	}

	recs = sup.Evaluate(ctx, []Sample{healthy})
	if recs[0].Status != StatusHealthy || recs[0].Quarantine {
		t.Fatalf("want healthy and unquarantined after recovery, got %+v", recs[0])
	}
}

// TestEvaluateIsPureModuloQuarantine verifies invariant 8: same sample
// yields same record regardless of prior state, except the quarantine bit.
func TestEvaluateIsPureModuloQuarantine(t *testing.T) {
	sample := Sample{Name: "p", Configured: true, Discovered: true, HeartbeatOK: false, DependencyOK: true}

	fromScratch := evaluate(2, sample, Record{})
	fromHealthyPrior := evaluate(2, sample, Record{Name: "p", Status: StatusHealthy, ReasonCode: ReasonOK})

	if fromScratch.Status != fromHealthyPrior.Status || fromScratch.ReasonCode != fromHealthyPrior.ReasonCode {
		t.Fatalf("status/reason_code must be prior-independent: %+v vs %+v", fromScratch, fromHealthyPrior)
	}
}

func TestQuarantineNeverSetByDependencyOrHeartbeatRules(t *testing.T) {
	sample := Sample{Name: "p", Configured: true, Discovered: true, HeartbeatOK: false, DependencyOK: false}
	rec := evaluate(2, sample, Record{})
	if rec.Quarantine {
		t.Fatalf("rules 5/6 must never themselves set quarantine, got %+v", rec)
	}
}

func TestCrashLoopTakesPrecedenceOverNotDiscovered(t *testing.T) {
	sample := Sample{Name: "p", CrashCount: 99, PolicyViolation: true, Discovered: false}
	// Rule order: crash-loop (1) and policy-violation (2) are evaluated
	// before not-discovered (3), so a crash-looping undiscovered plugin is
	// still reported as quarantined crash-loop, not not-discovered. This
	// test pins that precedence.
	rec := evaluate(2, sample, Record{})
	if rec.ReasonCode != ReasonCrashLoop {
		t.Fatalf("want crash-loop precedence, got %+v", rec)
	}
}
