package ports

import "context"

// TokenVerifier validates a bearer token and returns the authenticated user id.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}
