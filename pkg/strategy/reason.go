package strategy

import (
	"fmt"
	"strings"
)

// BuildReason renders the stable, space-separated tag grammar described in
// §4.3 "Reason strings" and §9 Design Notes ("String-interpolated reason
// fields"): strategy:<name>, optional learning:<penalty>, optional
// tail=p95:<ms>,p99:<ms>. Consumers parse by tag, not by position, so tag
// order here is cosmetic but kept stable for byte-identical replay
// comparisons (§8 invariant 7).
func BuildReason(strategyName string, learningPenalty *float64, tailP95Ms, tailP99Ms *float64) string {
	tags := []string{fmt.Sprintf("strategy:%s", strategyName)}
	if learningPenalty != nil {
		tags = append(tags, fmt.Sprintf("learning:%g", *learningPenalty))
	}
	if tailP95Ms != nil && tailP99Ms != nil {
		tags = append(tags, fmt.Sprintf("tail=p95:%g,p99:%g", *tailP95Ms, *tailP99Ms))
	}
	return strings.Join(tags, " ")
}

// NoneReason is the sentinel reason when every strategy is exhausted
// without a selection (§4.3 Algorithm: "return a sentinel selection
// (strategy=none)").
const NoneReason = "strategy:none"
