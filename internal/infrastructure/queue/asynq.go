package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	"github.com/amirhosseinghanipour/erasure/internal/domain"
)

const (
	TypeDeleteAccount = "erasure:delete_account"
	QueueErasure      = "erasure"

	// uniqueFor keeps a finished task around so a repeat request for the same user is rejected.
	uniqueFor = 10 * time.Minute
	maxRetry  = 3
)

// erasePayload is the JSON body of a TypeDeleteAccount task.
type erasePayload struct {
	UserID          string `json:"user_id"`
	ProfilePhotoRef string `json:"profile_photo_ref,omitempty"`
	RequestID       string `json:"request_id,omitempty"`
	MaxBatches      int    `json:"max_batches,omitempty"`
	Actor           string `json:"actor,omitempty"`
}

func (p erasePayload) task() (ports.EraseTask, error) {
	uid, err := domain.ParseUserID(p.UserID)
	if err != nil {
		return ports.EraseTask{}, err
	}
	return ports.EraseTask{
		UserID:          uid,
		ProfilePhotoRef: p.ProfilePhotoRef,
		RequestID:       p.RequestID,
		MaxBatches:      p.MaxBatches,
		Actor:           p.Actor,
	}, nil
}

// NewEraseTask builds the asynq task for t. The task id is derived from the user so that
// only one erasure per user is pending or recently finished.
func NewEraseTask(t ports.EraseTask) (*asynq.Task, error) {
	payload, err := json.Marshal(erasePayload{
		UserID:          t.UserID.String(),
		ProfilePhotoRef: t.ProfilePhotoRef,
		RequestID:       t.RequestID,
		MaxBatches:      t.MaxBatches,
		Actor:           t.Actor,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDeleteAccount, payload,
		asynq.TaskID(taskID(t.UserID)),
		asynq.Queue(QueueErasure),
		asynq.MaxRetry(maxRetry),
		asynq.Retention(uniqueFor),
	), nil
}

func taskID(uid domain.UserID) string {
	return "erase:" + uid.String()
}

type TaskEnqueuer struct {
	client *asynq.Client
	log    zerolog.Logger
}

func NewAsynqEnqueuer(redisOpt asynq.RedisClientOpt, log zerolog.Logger) (*TaskEnqueuer, error) {
	client := asynq.NewClient(redisOpt)
	return &TaskEnqueuer{client: client, log: log}, nil
}

func (q *TaskEnqueuer) Close() error {
	return q.client.Close()
}

// EnqueueErase enqueues an erasure. A duplicate for a user already queued is not an error.
func (q *TaskEnqueuer) EnqueueErase(ctx context.Context, t ports.EraseTask) error {
	task, err := NewEraseTask(t)
	if err != nil {
		return fmt.Errorf("build erase task: %w", err)
	}
	info, err := q.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		q.log.Info().Str("user_id", t.UserID.String()).Msg("erase task already queued")
		return nil
	}
	if err != nil {
		q.log.Warn().Err(err).Str("user_id", t.UserID.String()).Msg("enqueue erase task failed")
		return err
	}
	q.log.Debug().Str("task_id", info.ID).Str("queue", info.Queue).Msg("erase task enqueued")
	return nil
}

var _ ports.TaskEnqueuer = (*TaskEnqueuer)(nil)
