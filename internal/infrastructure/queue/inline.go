package queue

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
)

// InlineEnqueuer runs tasks in-process on detached goroutines when Redis/Asynq is not configured.
type InlineEnqueuer struct {
	proc TaskProcessor
	log  zerolog.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

func NewInlineEnqueuer(proc TaskProcessor, log zerolog.Logger) *InlineEnqueuer {
	return &InlineEnqueuer{proc: proc, log: log, inflight: make(map[string]struct{})}
}

// EnqueueErase starts the erasure and returns immediately. A second request for a user
// whose erasure is still running is dropped.
func (q *InlineEnqueuer) EnqueueErase(ctx context.Context, t ports.EraseTask) error {
	key := t.UserID.String()
	q.mu.Lock()
	if _, busy := q.inflight[key]; busy {
		q.mu.Unlock()
		q.log.Info().Str("user_id", key).Msg("erase task already running")
		return nil
	}
	q.inflight[key] = struct{}{}
	q.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer func() {
			q.mu.Lock()
			delete(q.inflight, key)
			q.mu.Unlock()
		}()
		q.proc.Process(ctx, t)
	}()
	return nil
}

// Wait blocks until every started task has finished.
func (q *InlineEnqueuer) Wait() {
	q.wg.Wait()
}

var _ ports.TaskEnqueuer = (*InlineEnqueuer)(nil)
