package api

import (
	"context"

	"github.com/google/uuid"
)

type contextKey int

const (
	contextKeyRequestID contextKey = iota
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// SetRequestID returns a new context with the request ID attached.
func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, id)
}

// RequestIDFromContext extracts the request ID from context, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}

// newRequestID returns a fresh random request ID.
func newRequestID() string {
	return uuid.NewString()
}
