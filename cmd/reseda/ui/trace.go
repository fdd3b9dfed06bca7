package ui

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// TraceOutput logs finished spans at debug level.
type TraceOutput struct {
	provider *sdktrace.TracerProvider
}

// NewTraceOutput returns an output that records spans only when enabled.
func NewTraceOutput(enabled bool) *TraceOutput {
	if !enabled {
		return &TraceOutput{}
	}
	return &TraceOutput{provider: sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(spanLogger{}),
	)}
}

func (o *TraceOutput) Tracer(name string) trace.Tracer {
	if o == nil || o.provider == nil {
		return otel.Tracer(name)
	}
	return o.provider.Tracer(name)
}

func (o *TraceOutput) Close() {
	if o == nil || o.provider == nil {
		return
	}
	_ = o.provider.Shutdown(context.Background())
}

// spanLogger resolves the default logger per span so it follows later
// logging.Configure calls.
type spanLogger struct{}

func (spanLogger) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (spanLogger) OnEnd(span sdktrace.ReadOnlySpan) {
	log := slog.Default().With("component", "trace")
	attrs := []any{
		"span", span.Name(),
		"duration", span.EndTime().Sub(span.StartTime()),
	}
	for _, ev := range span.Events() {
		attrs = append(attrs, "event", ev.Name)
	}
	if st := span.Status(); st.Code == codes.Error {
		log.Debug("span failed", append(attrs, "err", st.Description)...)
		return
	}
	log.Debug("span finished", attrs...)
}

func (spanLogger) Shutdown(context.Context) error   { return nil }
func (spanLogger) ForceFlush(context.Context) error { return nil }
