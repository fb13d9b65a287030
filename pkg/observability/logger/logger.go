// Package logger provides the structured logger shared by every queue component.
package logger

import (
	"context"
)

// Logger is the structured logging contract. Every method takes a message
// followed by alternating key-value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a child logger that adds args to every entry.
	With(args ...any) Logger

	// WithContext returns a child logger carrying the request and drain
	// identifiers stored in ctx, if any.
	WithContext(ctx context.Context) Logger
}

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	drainIDKey   contextKey = "drain_id"
)

// ContextWithRequestID stores the id of the queued request being delivered.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// ContextWithDrainID stores the id of the running drain pass.
func ContextWithDrainID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, drainIDKey, id)
}

// RequestIDFromContext returns the request id stored in ctx.
func RequestIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, requestIDKey)
}

// DrainIDFromContext returns the drain pass id stored in ctx.
func DrainIDFromContext(ctx context.Context) string {
	return stringFromContext(ctx, drainIDKey)
}

func stringFromContext(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(key).(string)
	return value
}

func contextFields(ctx context.Context) []any {
	var fields []any
	if id := DrainIDFromContext(ctx); id != "" {
		fields = append(fields, "drain_id", id)
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, "request_id", id)
	}
	return fields
}
