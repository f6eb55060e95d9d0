package webhook

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
)

// LogEmitter writes audit events to the log when WEBHOOK_URL is not set.
type LogEmitter struct {
	log zerolog.Logger
}

func NewLogEmitter(log zerolog.Logger) *LogEmitter {
	return &LogEmitter{log: log.With().Str("component", "webhook").Logger()}
}

// Emit implements ports.WebhookEmitter.
func (e *LogEmitter) Emit(ctx context.Context, event ports.AuditEvent) error {
	e.log.Debug().
		Str("event", event.Event).
		Str("user_id", event.UserID).
		Str("run_id", event.RunID).
		Bool("success", event.Success).
		Msg("webhook not configured; event dropped")
	return nil
}

var _ ports.WebhookEmitter = (*LogEmitter)(nil)
