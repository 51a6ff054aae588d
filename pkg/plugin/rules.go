package plugin

import "fmt"

// evaluate applies the seven ordered rules of §4.5 to sample against the
// plugin's prior record, producing the next record. Evaluation is a pure
// function of (sample, prior) — no rule ever panics or returns an error
// (§7 Propagation policy: "Plugin evaluation never throws; unexpected
// inputs yield status=unknown, reason_code=not-discovered").
func evaluate(quarantineThreshold int, sample Sample, prior Record) Record {
	next := Record{
		Name:       sample.Name,
		CrashCount: sample.CrashCount,
	}

	switch {
	case sample.CrashCount >= quarantineThreshold:
		next.Status = StatusDegraded
		next.Quarantine = true
		next.ReasonCode = ReasonCrashLoop
	case sample.PolicyViolation:
		next.Status = StatusDegraded
		next.Quarantine = true
		next.ReasonCode = ReasonPolicyViolation
	case !sample.Discovered:
		next.Status = StatusUnknown
		next.Quarantine = false
		next.ReasonCode = ReasonNotDiscovered
	case !sample.Configured:
		next.Status = StatusUnknown
		next.Quarantine = quarantineCarriesForward(prior)
		next.ReasonCode = ReasonNotConfigured
	case !sample.DependencyOK:
		next.Status = StatusDegraded
		next.Quarantine = quarantineCarriesForward(prior)
		next.ReasonCode = ReasonMissingDependency
	case !sample.HeartbeatOK:
		next.Status = StatusDegraded
		next.Quarantine = quarantineCarriesForward(prior)
		next.ReasonCode = ReasonMissingHeartbeat
	default:
		next.Status = StatusHealthy
		next.Quarantine = false
		next.ReasonCode = ReasonOK
	}

	next.TransitionReason = transitionReason(prior, next)
	return next
}

// quarantineCarriesForward implements the monotonicity rule from §4.5: a
// plugin exits quarantine only when rule 1 and rule 2 both cease to apply
// AND at least one healthy evaluation has been observed. Rules 4-6 never
// themselves clear or set quarantine, so they carry prior.Quarantine
// forward unconditionally. Reaching the healthy default branch (rule 7) is
// itself the required healthy evaluation, so that branch clears it; rule 3
// (not-discovered) also sets quarantine to false.
func quarantineCarriesForward(prior Record) bool {
	return prior.Quarantine
}

// transitionReason documents predecessor -> successor as free text, e.g.
// "healthy->degraded:missing-heartbeat" (§4.5).
func transitionReason(prior, next Record) string {
	if prior.Status == "" {
		return fmt.Sprintf("(new)->%s:%s", next.Status, next.ReasonCode)
	}
	if prior.Status == next.Status && prior.ReasonCode == next.ReasonCode && prior.Quarantine == next.Quarantine {
		return fmt.Sprintf("%s:%s", next.Status, next.ReasonCode)
	}
	return fmt.Sprintf("%s->%s:%s", prior.Status, next.Status, next.ReasonCode)
}
