package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestNewInstallsDefault(t *testing.T) {
	l := New("livermore-test", slog.LevelWarn)
	if l == nil {
		t.Fatal("nil logger")
	}
	if !l.Enabled(context.Background(), slog.LevelError) {
		t.Error("error level should be enabled at warn threshold")
	}
	if l.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug level should be disabled at warn threshold")
	}
}

func TestCorrelationIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := CorrelationID(ctx); got != "" {
		t.Errorf("empty context: got %q, want \"\"", got)
	}
	ctx = WithCorrelationID(ctx, "9f2c1b34-ffab-4c10-9d2e-000000000001")
	if got := CorrelationID(ctx); got != "9f2c1b34-ffab-4c10-9d2e-000000000001" {
		t.Errorf("got %q", got)
	}
}

func TestCorrelationAttrs(t *testing.T) {
	if attrs := CorrelationAttrs(context.Background()); attrs != nil {
		t.Errorf("expected nil attrs without an id, got %v", attrs)
	}
	ctx := WithCorrelationID(context.Background(), "cmd-1")
	attrs := CorrelationAttrs(ctx)
	if len(attrs) != 1 {
		t.Fatalf("expected one attr, got %d", len(attrs))
	}
	a, ok := attrs[0].(slog.Attr)
	if !ok {
		t.Fatalf("expected slog.Attr, got %T", attrs[0])
	}
	if a.Key != "correlation_id" || a.Value.String() != "cmd-1" {
		t.Errorf("got %s=%s", a.Key, a.Value.String())
	}
}
