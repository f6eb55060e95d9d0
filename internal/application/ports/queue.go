package ports

import (
	"context"

	"github.com/amirhosseinghanipour/erasure/internal/domain"
)

// EraseTask is the payload of a queued account erasure.
type EraseTask struct {
	UserID          domain.UserID
	ProfilePhotoRef string
	RequestID       string // deletion request document, if any
	MaxBatches      int    // 0 = orchestrator default
	Actor           string // who asked: self, admin, intake, followup
	// FollowUp marks a re-run of an incomplete run; a photo that is already gone counts as deleted.
	FollowUp bool
}

// TaskEnqueuer enqueues async erasure work.
type TaskEnqueuer interface {
	EnqueueErase(ctx context.Context, task EraseTask) error
}
