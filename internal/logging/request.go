package logging

import (
	"context"

	"github.com/google/uuid"
)

type requestIDKey struct{}

// WithRequestID stores id in ctx and scopes the context logger to it. An
// empty id is replaced by a fresh one.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		id = uuid.NewString()
	}
	ctx = context.WithValue(ctx, requestIDKey{}, id)
	return WithLogger(ctx, FromContext(ctx).WithField("requestId", id))
}

// RequestID returns the request id carried by ctx, or ""
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
