package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	"github.com/amirhosseinghanipour/erasure/internal/domain"
)

// TaskProcessor runs a decoded erase task; implemented by *intake.Processor.
type TaskProcessor interface {
	Process(ctx context.Context, task ports.EraseTask) domain.Report
}

// Worker runs Asynq task handlers.
type Worker struct {
	srv *asynq.Server
	mux *asynq.ServeMux
	log zerolog.Logger
}

// NewWorker creates an Asynq server and registers handlers. Call Run() to start.
func NewWorker(redisOpt asynq.RedisClientOpt, proc TaskProcessor, concurrency int, log zerolog.Logger) *Worker {
	if concurrency <= 0 {
		concurrency = 2
	}
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{QueueErasure: 1},
		LogLevel:    asynq.InfoLevel,
	})
	mux := asynq.NewServeMux()
	w := &Worker{srv: srv, mux: mux, log: log}
	mux.HandleFunc(TypeDeleteAccount, HandleErase(proc, log))
	return w
}

// HandleErase decodes the payload and runs the task. An incomplete run is not retried here:
// the run ledger and the follow-up pass take care of it.
func HandleErase(proc TaskProcessor, log zerolog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p erasePayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			log.Error().Err(err).Msg("erase task payload invalid")
			return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
		}
		task, err := p.task()
		if err != nil {
			log.Error().Err(err).Msg("erase task user id invalid")
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		report := proc.Process(ctx, task)
		log.Info().
			Str("user_id", task.UserID.String()).
			Str("run_id", report.RunID).
			Bool("success", report.Success).
			Msg("erase task done")
		return nil
	}
}

// Run blocks until shutdown. Use Shutdown for graceful stop.
func (w *Worker) Run() error {
	return w.srv.Run(w.mux)
}

// Shutdown stops the worker.
func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}
