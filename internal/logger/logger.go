// Package logger builds the shared slog.Logger both binaries use and
// threads a correlation id through context, so every log line emitted
// while a control command is being handled carries the same id the caller
// sees on its ack/success/error responses.
package logger

import (
	"context"
	"log/slog"
	"os"
)

type ctxKey struct{}

// New returns a JSON logger writing to stderr, tagged with the service
// name. It is also installed as the slog default so package-level slog
// calls share the same handler.
func New(service string, level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	l := slog.New(h).With(slog.String("service", service))
	slog.SetDefault(l)
	return l
}

// WithCorrelationID returns a context carrying id for downstream handlers.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// CorrelationID returns the id stored by WithCorrelationID, or "".
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// CorrelationAttrs returns slog key/value args for the context's
// correlation id, or nil when none is set, so call sites can append it
// unconditionally.
func CorrelationAttrs(ctx context.Context) []any {
	id := CorrelationID(ctx)
	if id == "" {
		return nil
	}
	return []any{slog.String("correlation_id", id)}
}
