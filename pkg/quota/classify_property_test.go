package quota

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestClassifyMonotonicProperty checks invariant 2: classification rank is
// non-decreasing in percent-used for a fixed pair of thresholds, i.e.
// increasing usage never moves a provider to a healthier status.
func TestClassifyMonotonicProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("classify is monotonic non-decreasing in percent", prop.ForAll(
		func(warning, spread, p1, p2Delta float64) bool {
			critical := warning + spread
			if critical > 1 {
				critical = 1
			}
			if warning < 0 || warning > critical {
				return true // outside the valid domain, validate() would reject it
			}
			p2 := p1 + p2Delta
			s1 := classify(p1, warning, critical)
			s2 := classify(p2, warning, critical)
			return s1.rank() <= s2.rank()
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 2),
		gen.Float64Range(0, 2),
	))

	properties.TestingRun(t)
}

// TestClassifyBoundaryProperty checks the upper boundary of §4.2's
// classification rules: p >= 1 is always exhausted regardless of
// thresholds.
func TestClassifyBoundaryProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("p >= 1 is always exhausted", prop.ForAll(
		func(warning, critical, extra float64) bool {
			if warning < 0 || warning > 1 || critical < warning || critical > 1 {
				return true
			}
			return classify(1+extra, warning, critical) == StatusExhausted
		},
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 1),
		gen.Float64Range(0, 5),
	))

	properties.TestingRun(t)
}
