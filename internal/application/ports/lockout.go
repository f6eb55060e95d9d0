package ports

import "context"

// LockoutStore tracks failed admin-secret attempts per client and imposes a cooldown.
type LockoutStore interface {
	// IsLocked returns true if the client is locked, and the remaining cooldown duration.
	IsLocked(ctx context.Context, client string) (locked bool, retryAfterSeconds int)
	// RecordFailure records a failed attempt; may lock the client after N failures.
	RecordFailure(ctx context.Context, client string)
	// RecordSuccess clears the failure count for the client.
	RecordSuccess(ctx context.Context, client string)
}
