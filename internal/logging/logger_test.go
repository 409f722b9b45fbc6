package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

// captureDefault routes the default logger into a buffer for one test.
func captureDefault(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

// ============================================================================
// Trace ID Tests
// ============================================================================

func TestTraceID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := TraceID(ctx); got != "" {
		t.Errorf("TraceID on bare context = %q, want empty", got)
	}

	ctx = WithTraceID(ctx, "trace-42")
	if got := TraceID(ctx); got != "trace-42" {
		t.Errorf("TraceID = %q, want %q", got, "trace-42")
	}
}

func TestFromContext_EnrichesWithTraceID(t *testing.T) {
	buf := captureDefault(t)

	ctx := WithTraceID(context.Background(), "trace-42")
	FromContext(ctx).Info("import started")

	out := buf.String()
	if !strings.Contains(out, `"trace_id":"trace-42"`) {
		t.Errorf("log output %q missing trace_id attribute", out)
	}
}

func TestFromContext_NoTraceID(t *testing.T) {
	buf := captureDefault(t)

	FromContext(context.Background()).Info("no batch")

	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("log output %q should not carry a trace_id", buf.String())
	}
}

func TestWithFields(t *testing.T) {
	buf := captureDefault(t)

	ctx := WithTraceID(context.Background(), "trace-42")
	WithFields(ctx, "assembly_id", int64(7)).Debug("bom import finished", "total", 3)

	out := buf.String()
	for _, want := range []string{`"trace_id":"trace-42"`, `"assembly_id":7`, `"total":3`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %s", out, want)
		}
	}
}

// ============================================================================
// Level Parsing Tests
// ============================================================================

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
