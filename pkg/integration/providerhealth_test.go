package integration

import (
	"errors"
	"testing"
)

func TestClassifyHTTPStatus(t *testing.T) {
	cases := map[int]HealthStatus{
		200: HealthHealthy,
		204: HealthHealthy,
		429: HealthRateLimited,
		401: HealthAuthError,
		403: HealthAuthError,
		500: HealthNetworkErr,
		503: HealthNetworkErr,
	}
	for status, want := range cases {
		if got := ClassifyHTTPStatus(status); got != want {
			t.Errorf("ClassifyHTTPStatus(%d) = %q, want %q", status, got, want)
		}
	}
}

func TestClassifyProbeException(t *testing.T) {
	h := ClassifyProbe("anthropic", func() (int, float64, error) {
		return 0, 0, errors.New("dial tcp: connection refused")
	})
	if h.Status != HealthNetworkErr {
		t.Fatalf("want network_error on probe exception, got %q", h.Status)
	}
	if h.Error == "" {
		t.Fatalf("want error detail preserved")
	}
}

func TestClassifyProbeHealthy(t *testing.T) {
	h := ClassifyProbe("openai", func() (int, float64, error) {
		return 200, 42.5, nil
	})
	if h.Status != HealthHealthy {
		t.Fatalf("want healthy, got %q", h.Status)
	}
	if h.LatencyMs == nil || *h.LatencyMs != 42.5 {
		t.Fatalf("want latency recorded, got %+v", h.LatencyMs)
	}
}
