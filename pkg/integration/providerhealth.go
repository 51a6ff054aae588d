package integration

import "time"

// HealthStatus classifies a provider health probe result (§6 "Provider
// health probe format").
type HealthStatus string

const (
	HealthHealthy     HealthStatus = "healthy"
	HealthRateLimited HealthStatus = "rate_limited"
	HealthAuthError   HealthStatus = "auth_error"
	HealthNetworkErr  HealthStatus = "network_error"
	HealthUnknown     HealthStatus = "unknown"
)

// ProviderHealth is the probe payload the core consumes (§6).
type ProviderHealth struct {
	Provider    string
	Status      HealthStatus
	LatencyMs   *float64
	Error       string
	LastChecked time.Time
}

// ClassifyHTTPStatus implements §6's classification rules: HTTP 429 ->
// rate_limited; 401/403 -> auth_error; other non-2xx -> network_error;
// 2xx -> healthy.
func ClassifyHTTPStatus(statusCode int) HealthStatus {
	switch {
	case statusCode == 429:
		return HealthRateLimited
	case statusCode == 401 || statusCode == 403:
		return HealthAuthError
	case statusCode >= 200 && statusCode < 300:
		return HealthHealthy
	default:
		return HealthNetworkErr
	}
}

// ClassifyProbe runs a probe function and classifies its outcome, mapping
// a returned error (the probe couldn't complete at all, e.g. a transport
// exception) to network_error per §6: "exception -> network_error".
func ClassifyProbe(provider string, probe func() (statusCode int, latencyMs float64, err error)) ProviderHealth {
	now := time.Now()
	statusCode, latencyMs, err := probe()
	if err != nil {
		return ProviderHealth{
			Provider: provider, Status: HealthNetworkErr, Error: err.Error(), LastChecked: now,
		}
	}
	lat := latencyMs
	return ProviderHealth{
		Provider: provider, Status: ClassifyHTTPStatus(statusCode), LatencyMs: &lat, LastChecked: now,
	}
}
