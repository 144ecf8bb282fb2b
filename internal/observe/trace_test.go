package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTestTracer installs an in-memory tracer provider as the global one for
// the duration of the test.
func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
	return exp
}

// captureLogs redirects the default slog logger into a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestStartSpan_RecordsSpan(t *testing.T) {
	exp := useTestTracer(t)

	ctx, span := StartSpan(context.Background(), "rephrase")
	if CorrelationID(ctx) == "" {
		t.Error("span has no trace ID")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "rephrase" {
		t.Fatalf("spans = %v, want one named rephrase", spans)
	}
}

func TestCorrelationID_EmptyWithoutSpan(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID = %q, want empty", got)
	}
}

func TestSessionID(t *testing.T) {
	ctx := WithSessionID(context.Background(), "abc-123")
	if got := SessionID(ctx); got != "abc-123" {
		t.Errorf("SessionID = %q, want abc-123", got)
	}
	if got := SessionID(context.Background()); got != "" {
		t.Errorf("SessionID(background) = %q, want empty", got)
	}
}

func TestLogger_Enrichment(t *testing.T) {
	useTestTracer(t)

	tests := []struct {
		name    string
		ctx     func() (context.Context, func())
		want    []string
		notWant []string
	}{
		{
			name:    "bare context",
			ctx:     func() (context.Context, func()) { return context.Background(), func() {} },
			notWant: []string{"trace_id", "session_id"},
		},
		{
			name: "session only",
			ctx: func() (context.Context, func()) {
				return WithSessionID(context.Background(), "s-1"), func() {}
			},
			want:    []string{"session_id=s-1"},
			notWant: []string{"trace_id"},
		},
		{
			name: "session and span",
			ctx: func() (context.Context, func()) {
				ctx, span := StartSpan(WithSessionID(context.Background(), "s-2"), "op")
				return ctx, func() { span.End() }
			},
			want: []string{"session_id=s-2", "trace_id=", "span_id="},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := captureLogs(t)
			ctx, done := tc.ctx()
			defer done()

			Logger(ctx).Info("hello")

			out := buf.String()
			for _, w := range tc.want {
				if !strings.Contains(out, w) {
					t.Errorf("log %q missing %q", out, w)
				}
			}
			for _, w := range tc.notWant {
				if strings.Contains(out, w) {
					t.Errorf("log %q should not contain %q", out, w)
				}
			}
		})
	}
}
