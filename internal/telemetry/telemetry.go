// Package telemetry defines the logging, metrics, and tracing interfaces
// used throughout the control plane. Components accept these interfaces at
// construction rather than reaching for a global logger, so tests can supply
// no-op implementations and production wiring can swap in OpenTelemetry-backed
// ones without touching component code.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// Logger emits structured log messages. Implementations must be safe for
	// concurrent use; every component in the control plane logs from multiple
	// goroutines (step executors, breaker probes, plugin evaluation cycles).
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters, timers, and gauges. Tag arguments are
	// key-value string pairs (k1, v1, k2, v2, ...).
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, duration time.Duration, tags ...string)
		RecordGauge(name string, value float64, tags ...string)
	}

	// Tracer creates spans for tracking operations across component
	// boundaries (a routing decision spanning quota lookup, strategy
	// dispatch, and circuit-guarded provider call).
	Tracer interface {
		Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
		Span(ctx context.Context) Span
	}

	// Span represents a single unit of traced work.
	Span interface {
		End(opts ...trace.SpanEndOption)
		AddEvent(name string, attrs ...any)
		SetStatus(code codes.Code, description string)
		RecordError(err error, opts ...trace.EventOption)
	}
)
