package retention

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/amirhosseinghanipour/erasure/internal/application/intake"
	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	"github.com/amirhosseinghanipour/erasure/internal/domain"
)

// Runner executes one erase task with its request bookkeeping; implemented by *intake.Processor.
type Runner interface {
	Process(ctx context.Context, task ports.EraseTask) domain.Report
}

// FollowUpConfig bounds one follow-up pass.
type FollowUpConfig struct {
	// SettleFor skips runs that finished more recently than this.
	SettleFor time.Duration
	// MaxBatches is the per-step batch budget for re-runs (wider than a regular run).
	MaxBatches int
	// Limit caps how many users one pass re-runs. 0 = 100.
	Limit int
}

// RunFollowUps re-runs erasure for users whose latest run failed or hit the batch budget.
// Call periodically (e.g. hourly cron). Each re-run is recorded in the ledger, so users drop
// out of the list once a run completes cleanly.
func RunFollowUps(ctx context.Context, ledger ports.RunLedger, runner Runner, cfg FollowUpConfig, log zerolog.Logger) (rerun, stillIncomplete int, err error) {
	limit := cfg.Limit
	if limit <= 0 {
		limit = 100
	}
	refs, err := ledger.ListIncomplete(ctx, time.Now().Add(-cfg.SettleFor), limit)
	if err != nil {
		return 0, 0, err
	}
	for _, ref := range refs {
		if ctx.Err() != nil {
			return rerun, stillIncomplete, ctx.Err() // stop between runs, never inside one
		}
		report := runner.Process(ctx, followUpTask(ref, cfg.MaxBatches))
		rerun++
		if report.Incomplete() {
			stillIncomplete++
		}
		log.Info().
			Str("user_id", ref.UserID.String()).
			Str("previous_run_id", ref.RunID).
			Str("run_id", report.RunID).
			Bool("success", report.Success).
			Bool("truncated", report.Truncated()).
			Msg("erasure follow-up")
	}
	return rerun, stillIncomplete, nil
}

// followUpTask carries over the request and any photo the previous run failed to delete.
// The user document may already be gone, so its photo field cannot be relied on.
func followUpTask(ref domain.RunRef, maxBatches int) ports.EraseTask {
	task := ports.EraseTask{
		UserID:     ref.UserID,
		RequestID:  ref.RequestID,
		MaxBatches: maxBatches,
		Actor:      intake.ActorFollowUp,
		FollowUp:   true,
	}
	if ref.PhotoRef != "" && !ref.PhotoDeleted {
		task.ProfilePhotoRef = ref.PhotoRef
	}
	return task
}
