package ports

import (
	"context"
	"time"

	"github.com/amirhosseinghanipour/erasure/internal/domain"
)

// RunLedger records erasure reports so incomplete runs can be followed up.
type RunLedger interface {
	Record(ctx context.Context, report domain.Report) error
	// ListIncomplete returns users whose most recent run failed or was truncated and finished before the cutoff.
	ListIncomplete(ctx context.Context, finishedBefore time.Time, limit int) ([]domain.RunRef, error)
	// Latest returns the most recent run for a user, or nil.
	Latest(ctx context.Context, userID domain.UserID) (*domain.RunRef, error)
}
