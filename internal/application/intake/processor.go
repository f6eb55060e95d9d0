package intake

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/amirhosseinghanipour/erasure/internal/application/erasure"
	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	"github.com/amirhosseinghanipour/erasure/internal/domain"
)

// Audit event names.
const (
	EventEraseRequested = "account.erase.requested"
	EventEraseCompleted = "account.erase.completed"
)

// Actors recorded on audit events.
const (
	ActorSelf     = "self"
	ActorAdmin    = "admin"
	ActorIntake   = "intake"
	ActorFollowUp = "followup"
)

// Eraser runs one erasure; implemented by *erasure.Orchestrator.
type Eraser interface {
	Delete(ctx context.Context, req erasure.Request) domain.Report
}

// Processor executes a dequeued erase task and records its outcome.
type Processor struct {
	eraser  Eraser
	store   ports.DocumentStore
	catalog domain.Catalog
	webhook ports.WebhookEmitter
	log     zerolog.Logger
}

func NewProcessor(eraser Eraser, store ports.DocumentStore, catalog domain.Catalog, webhook ports.WebhookEmitter, log zerolog.Logger) *Processor {
	return &Processor{
		eraser:  eraser,
		store:   store,
		catalog: catalog,
		webhook: webhook,
		log:     log.With().Str("component", "processor").Logger(),
	}
}

// Process runs the erasure, then updates the originating request document (if any)
// and emits the completion event. Bookkeeping failures are logged only.
func (p *Processor) Process(ctx context.Context, task ports.EraseTask) domain.Report {
	ctx = context.WithoutCancel(ctx)
	report := p.eraser.Delete(ctx, erasure.Request{
		UserID:          task.UserID,
		ProfilePhotoRef: task.ProfilePhotoRef,
		MaxBatches:      task.MaxBatches,
		RequestID:       task.RequestID,
		FollowUp:        task.FollowUp,
	})
	log := p.log.With().Str("user_id", task.UserID.String()).Str("run_id", report.RunID).Logger()

	if task.RequestID != "" {
		if err := Finish(ctx, p.store, p.catalog, task.RequestID, report); err != nil {
			log.Error().Err(err).Str("request_id", task.RequestID).Msg("update deletion request failed")
		}
	}
	p.Emit(ctx, CompletedEvent(report, task.Actor))
	return report
}

// Emit logs the event and forwards it to the webhook.
func (p *Processor) Emit(ctx context.Context, event ports.AuditEvent) {
	p.log.Info().
		Str("event", event.Event).
		Str("user_id", event.UserID).
		Str("actor", event.Actor).
		Bool("success", event.Success).
		Msg("audit")
	if p.webhook == nil {
		return
	}
	if err := p.webhook.Emit(ctx, event); err != nil {
		p.log.Warn().Err(err).Str("event", event.Event).Msg("webhook emit failed")
	}
}

// CompletedEvent summarizes a report for the audit trail.
func CompletedEvent(report domain.Report, actor string) ports.AuditEvent {
	event := ports.AuditEvent{
		Event:     EventEraseCompleted,
		UserID:    report.UserID.String(),
		RunID:     report.RunID,
		Actor:     actor,
		Success:   report.Success,
		Truncated: report.Truncated(),
	}
	if failed := report.FailedSteps(); len(failed) > 0 {
		event.Err = "failed steps: " + strings.Join(failed, ",")
	} else if !report.Success && report.PhotoRef != "" && !report.PhotoDeleted {
		event.Err = "profile photo not deleted"
	}
	return event
}
