// Package context carries per-request tracing values across the trigger API
package context

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ctxKey is unexported so other packages cannot collide with these keys.
// The values must be distinct: pointers to zero-size allocations all share
// one address and would shadow each other inside one context chain.
type ctxKey int

const (
	requestIDKey ctxKey = iota
	operationKey
	startTimeKey
)

// WithRequestID adds a request ID to the context, generating one when the
// caller did not supply its own.
func WithRequestID(parent context.Context, requestID string) context.Context {
	if requestID == "" {
		requestID = GenerateRequestID()
	}
	return context.WithValue(parent, requestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		return id
	}
	return "unknown-request"
}

// WithOperation adds an operation name to the context
func WithOperation(parent context.Context, operation string) context.Context {
	return context.WithValue(parent, operationKey, operation)
}

// GetOperation retrieves the operation name from context
func GetOperation(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey).(string); ok && op != "" {
		return op
	}
	return "unknown-operation"
}

// WithStartTime adds the operation start time to the context
func WithStartTime(parent context.Context, startTime time.Time) context.Context {
	return context.WithValue(parent, startTimeKey, startTime)
}

// GetDuration calculates the duration since the start time in context
func GetDuration(ctx context.Context) time.Duration {
	if t, ok := ctx.Value(startTimeKey).(time.Time); ok {
		return time.Since(t)
	}
	return 0
}

// GenerateRequestID creates a new unique request ID
func GenerateRequestID() string {
	return "req_" + uuid.New().String()
}

// Enrich stamps a request context with an operation name, a request ID and
// the arrival time. An X-Request-ID supplied by the caller wins.
func Enrich(parent context.Context, operation, requestID string) context.Context {
	ctx := WithRequestID(parent, requestID)
	ctx = WithOperation(ctx, operation)
	return WithStartTime(ctx, time.Now())
}

// TracingFields returns common tracing fields for structured logging
func TracingFields(ctx context.Context) map[string]interface{} {
	return map[string]interface{}{
		"request_id":  GetRequestID(ctx),
		"operation":   GetOperation(ctx),
		"duration_ms": GetDuration(ctx).Milliseconds(),
	}
}
