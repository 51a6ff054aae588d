package quota

import (
	"sync"

	"golang.org/x/time/rate"
)

// requestRateSampler tracks the instantaneous request rate for a
// request-based provider using a token-bucket limiter purely as an
// observation device: it never blocks a caller, it only reports how far
// the configured rate has been exceeded, since request-based quotas "never
// reset" (§4.2 "Periods") and therefore need a rate signal distinct from
// the cumulative counter.
type requestRateSampler struct {
	mu      sync.Mutex
	limiter *rate.Limiter
}

// newRequestRateSampler constructs a sampler allowing ratePerSecond steady
// state with a burst of the same size.
func newRequestRateSampler(ratePerSecond float64) *requestRateSampler {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	burst := int(ratePerSecond)
	if burst < 1 {
		burst = 1
	}
	return &requestRateSampler{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// observe records one request and reports whether it exceeded the
// configured rate (a non-blocking check, mirroring the spec's "does not
// suspend on network I/O" constraint for the Quota Manager, §5).
func (s *requestRateSampler) observe() (overRate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.limiter.Allow()
}
