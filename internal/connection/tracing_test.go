package connection_test

import (
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/bennjii/reseda"
	"github.com/bennjii/reseda/internal/connection"
	"github.com/bennjii/reseda/internal/signaling"
)

func newTestTracer() (*sdktrace.TracerProvider, *tracetest.SpanRecorder) {
	recorder := tracetest.NewSpanRecorder()
	return sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)), recorder
}

func endedSpan(spans []sdktrace.ReadOnlySpan, name string) sdktrace.ReadOnlySpan {
	for _, s := range spans {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func TestTracing_ConnectAndDisconnectSpans(t *testing.T) {
	tp, recorder := newTestTracer()
	h := newHarness(t, connection.WithTracer(tp.Tracer("test")))

	conn := h.connect(t)
	h.ctrl.Disconnect(t.Context(), conn, user, configPath)

	spans := recorder.Ended()
	connect := endedSpan(spans, "connection.connect")
	if connect == nil {
		t.Fatal("missing connection.connect span")
	}
	if connect.Status().Code != codes.Ok {
		t.Fatalf("connect span status = %v, want ok", connect.Status())
	}
	if disconnect := endedSpan(spans, "connection.disconnect"); disconnect == nil {
		t.Fatal("missing connection.disconnect span")
	}
}

func TestTracing_FailedAttemptRecordsError(t *testing.T) {
	tp, recorder := newTestTracer()
	h := newHarness(t, connection.WithTracer(tp.Tracer("test")))

	h.ctrl.Connect(t.Context(), fra1, user, configPath)
	h.dialer.Last().Push(signaling.Frame{Type: signaling.FrameError, Text: "denied"})
	until(t, h.statuses, reseda.Error)

	connect := endedSpan(recorder.Ended(), "connection.connect")
	if connect == nil {
		t.Fatal("missing connection.connect span")
	}
	if connect.Status().Code != codes.Error {
		t.Fatalf("connect span status = %v, want error", connect.Status())
	}
}
