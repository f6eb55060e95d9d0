package middleware

import (
	"context"

	"github.com/amirhosseinghanipour/erasure/internal/domain"
)

type contextKey string

const userContextKey contextKey = "user_id"

// WithUserID injects the authenticated user into the context.
func WithUserID(ctx context.Context, userID domain.UserID) context.Context {
	return context.WithValue(ctx, userContextKey, userID)
}

// UserIDFromContext returns the authenticated user, or "" when the request is anonymous.
func UserIDFromContext(ctx context.Context) domain.UserID {
	uid, _ := ctx.Value(userContextKey).(domain.UserID)
	return uid
}
