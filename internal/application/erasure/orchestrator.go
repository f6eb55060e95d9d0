package erasure

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	"github.com/amirhosseinghanipour/erasure/internal/domain"
	domerrors "github.com/amirhosseinghanipour/erasure/internal/domain/errors"
)

// Options tunes batching.
type Options struct {
	// BatchCapacity is the number of writes per atomic commit (default 450).
	BatchCapacity int
	// MaxBatchesPerStep bounds how many batches one query feeds per run (default 1).
	MaxBatchesPerStep int
}

func (o Options) withDefaults() Options {
	if o.BatchCapacity <= 0 || o.BatchCapacity > ports.MaxBatchWrites {
		o.BatchCapacity = DefaultBatchCapacity
	}
	if o.MaxBatchesPerStep <= 0 {
		o.MaxBatchesPerStep = 1
	}
	return o
}

// Request asks for one account erasure.
type Request struct {
	UserID domain.UserID
	// ProfilePhotoRef is deleted from blob storage after the user document. When empty the
	// user document's photo field is used, if present.
	ProfilePhotoRef string
	// MaxBatches overrides Options.MaxBatchesPerStep when > 0 (follow-up passes).
	MaxBatches int
	// RequestID links the run to its deletion request document, if any.
	RequestID string
	// FollowUp re-runs an incomplete erasure. A photo that is already gone counts as deleted.
	FollowUp bool
}

// Orchestrator runs the account erasure workflow: every anonymize and delete step
// concurrently, then the root user document, then the profile photo.
type Orchestrator struct {
	store    ports.DocumentStore
	blobs    ports.BlobStore
	catalog  domain.Catalog
	opts     Options
	metrics  ports.ErasureMetrics
	ledger   ports.RunLedger
	log      zerolog.Logger
	detached detacher
	now      func() time.Time
	newRunID func() string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics sets the step/run observer.
func WithMetrics(m ports.ErasureMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLedger records every report.
func WithLedger(l ports.RunLedger) Option {
	return func(o *Orchestrator) { o.ledger = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator builds the workflow over the given store facades.
func NewOrchestrator(store ports.DocumentStore, blobs ports.BlobStore, catalog domain.Catalog, opts Options, log zerolog.Logger, options ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		blobs:    blobs,
		catalog:  catalog,
		opts:     opts.withDefaults(),
		metrics:  ports.NopMetrics{},
		log:      log.With().Str("component", "erasure").Logger(),
		now:      time.Now,
		newRunID: func() string { return uuid.NewString() },
	}
	for _, opt := range options {
		opt(o)
	}
	return o
}

// Catalog returns the collection layout.
func (o *Orchestrator) Catalog() domain.Catalog { return o.catalog }

// Steps builds the per-collection steps for one run.
func (o *Orchestrator) Steps(maxBatches int) []Step {
	b := batcher{store: o.store, capacity: o.opts.BatchCapacity, maxBatches: o.opts.MaxBatchesPerStep}
	if maxBatches > 0 {
		b.maxBatches = maxBatches
	}
	steps := make([]Step, 0, len(o.catalog.Anonymize)+len(o.catalog.Delete)+len(o.catalog.UserSubcollections)+1)
	for _, t := range o.catalog.Anonymize {
		steps = append(steps, newAnonymizeStep(t, b, &o.detached, o.log))
	}
	for _, t := range o.catalog.Delete {
		steps = append(steps, newDeleteStep(t, b, o.log))
	}
	steps = append(steps, newDocumentStep("risk_score", o.catalog.RiskScoreRef, o.store, o.log))
	for _, sub := range o.catalog.UserSubcollections {
		steps = append(steps, newSubcollectionStep(sub, o.catalog, b, o.log))
	}
	return steps
}

// Delete erases the account and reports the aggregate outcome. It never returns an error and
// ignores cancellation of ctx: once started, a run always reaches the end. The root user
// document is deleted only after every step has reported.
func (o *Orchestrator) Delete(ctx context.Context, req Request) domain.Report {
	ctx = context.WithoutCancel(ctx)
	start := o.now()
	report := domain.Report{
		RunID:     o.newRunID(),
		UserID:    req.UserID,
		RequestID: req.RequestID,
		State:     domain.RunIdle,
		StartedAt: start,
	}
	log := o.log.With().Str("run_id", report.RunID).Str("user_id", req.UserID.String()).Logger()
	if _, err := domain.ParseUserID(req.UserID.String()); err != nil {
		log.Error().Err(err).Msg("refusing to run erasure without a user id")
		report.State = domain.RunPartialFailure
		report.FinishedAt = o.now()
		return report
	}

	photoRef := req.ProfilePhotoRef
	if photoRef == "" {
		photoRef = o.storedPhotoRef(ctx, log, req.UserID)
	}

	report.State = domain.RunRunning
	log.Info().Msg("erasure started")

	steps := o.Steps(req.MaxBatches)
	results := make([]domain.StepResult, len(steps))
	var g errgroup.Group
	for i, step := range steps {
		g.Go(func() error {
			results[i] = step.Run(ctx, req.UserID)
			return nil
		})
	}
	_ = g.Wait()

	failed := false
	for _, r := range results {
		o.metrics.ObserveStep(r)
		failed = failed || r.Failed
	}

	userRes := newDocumentStep("user", o.catalog.UserRef, o.store, o.log).Run(ctx, req.UserID)
	o.metrics.ObserveStep(userRes)
	results = append(results, userRes)
	failed = failed || userRes.Failed
	report.UserDeleted = !userRes.Failed

	if photoRef != "" {
		report.PhotoRef = photoRef
		err := o.blobs.Delete(ctx, photoRef)
		switch {
		case err == nil:
			report.PhotoDeleted = true
		case req.FollowUp && errors.Is(err, domerrors.ErrBlobNotFound):
			log.Info().Str("photo_ref", photoRef).Msg("profile photo already gone")
			report.PhotoDeleted = true
		default:
			log.Error().Err(err).Str("photo_ref", photoRef).Msg("delete profile photo failed")
			failed = true
		}
	}

	report.Steps = results
	report.Success = !failed
	report.State = domain.RunCompleted
	if failed {
		report.State = domain.RunPartialFailure
	}
	report.FinishedAt = o.now()
	o.metrics.ObserveRun(report, report.FinishedAt.Sub(start))

	ev := log.Info()
	if failed {
		ev = log.Warn().Strs("failed_steps", report.FailedSteps())
	}
	ev.Bool("success", report.Success).Bool("truncated", report.Truncated()).Msg("erasure finished")

	if o.ledger != nil {
		if err := o.ledger.Record(ctx, report); err != nil {
			log.Error().Err(err).Msg("record erasure run failed")
		}
	}
	return report
}

// Wait blocks until detached best-effort work (reply anonymization) has finished. Runs still
// executing after Wait is called scrub replies inline instead of detaching them.
func (o *Orchestrator) Wait() {
	o.detached.Close()
	o.detached.Wait()
}

func (o *Orchestrator) storedPhotoRef(ctx context.Context, log zerolog.Logger, userID domain.UserID) string {
	doc, err := o.store.Get(ctx, o.catalog.UserRef(userID))
	if err != nil {
		log.Warn().Err(err).Msg("read user document for photo reference failed")
		return ""
	}
	if doc == nil {
		return ""
	}
	return doc.String(o.catalog.PhotoField)
}
