package middleware

import (
	"context"

	"github.com/angelmondragon/linguamate-backend/internal/users"
)

type contextKey string

const (
	ctxUserID    contextKey = "user_id"
	ctxIdentity  contextKey = "identity"
	ctxRequestID contextKey = "request_id"
)

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID, id)
}

// RequestIDFromContext returns the id assigned by RequestID, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxRequestID).(string)
	return id
}

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

// IdentityFromContext returns the caller identity seeded by Auth. Only the
// external id is set when the token carried no profile claims.
func IdentityFromContext(ctx context.Context) users.Identity {
	if ctx == nil {
		return users.Identity{}
	}
	if v, ok := ctx.Value(ctxIdentity).(users.Identity); ok {
		return v
	}
	return users.Identity{ExternalID: UserIDFromContext(ctx)}
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithIdentity injects the caller identity and its user id.
func WithIdentity(ctx context.Context, identity users.Identity) context.Context {
	ctx = WithUserID(ctx, identity.ExternalID)
	return context.WithValue(ctx, ctxIdentity, identity)
}
