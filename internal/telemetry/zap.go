package telemetry

import (
	"context"

	"go.uber.org/zap"
)

// ZapLogger adapts a *zap.Logger to the Logger interface. The Plugin
// Lifecycle Supervisor and Circuit Breaker Registry are constructed with
// this adapter by default, matching the zap-based logging convention used
// for state-machine components across the pack.
type ZapLogger struct {
	z *zap.Logger
}

// NewZapLogger wraps an existing *zap.Logger. A nil logger is replaced with
// zap.NewNop() so callers never need a nil check.
func NewZapLogger(z *zap.Logger) Logger {
	if z == nil {
		z = zap.NewNop()
	}
	return &ZapLogger{z: z}
}

func (l *ZapLogger) Debug(_ context.Context, msg string, keyvals ...any) {
	l.z.Sugar().Debugw(msg, keyvals...)
}

func (l *ZapLogger) Info(_ context.Context, msg string, keyvals ...any) {
	l.z.Sugar().Infow(msg, keyvals...)
}

func (l *ZapLogger) Warn(_ context.Context, msg string, keyvals ...any) {
	l.z.Sugar().Warnw(msg, keyvals...)
}

func (l *ZapLogger) Error(_ context.Context, msg string, keyvals ...any) {
	l.z.Sugar().Errorw(msg, keyvals...)
}
