package core

import "context"

// Logger is the minimal structured logging interface every aipo component
// depends on. Implementations live in internal/logger; this package only
// declares the contract so that core does not depend on a logging
// implementation.
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Debug(msg string, fields map[string]interface{})

	// With returns a child logger that always includes fields.
	With(fields map[string]interface{}) Logger
}

// ComponentAwareLogger extends Logger with a component tag, allowing logs to
// be filtered by subsystem (e.g. "adapter/openai", "runner", "gate").
type ComponentAwareLogger interface {
	Logger
	WithComponent(component string) Logger
}

// NoOpLogger discards everything. Used as a safe default when no logger is wired.
type NoOpLogger struct{}

func (NoOpLogger) Info(string, map[string]interface{})  {}
func (NoOpLogger) Error(string, map[string]interface{}) {}
func (NoOpLogger) Warn(string, map[string]interface{})  {}
func (NoOpLogger) Debug(string, map[string]interface{}) {}
func (n NoOpLogger) With(map[string]interface{}) Logger { return n }

// Telemetry is the optional tracing/metrics sink. A nil Telemetry is valid;
// callers should guard with NoOpTelemetry when none is configured.
type Telemetry interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span represents one telemetry span.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// NoOpTelemetry discards spans and metrics.
type NoOpTelemetry struct{}

func (NoOpTelemetry) StartSpan(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, NoOpSpan{}
}
func (NoOpTelemetry) RecordMetric(string, float64, map[string]string) {}

// NoOpSpan discards attributes and errors.
type NoOpSpan struct{}

func (NoOpSpan) End()                               {}
func (NoOpSpan) SetAttribute(string, interface{})   {}
func (NoOpSpan) RecordError(error)                  {}
