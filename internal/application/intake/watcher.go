package intake

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	"github.com/amirhosseinghanipour/erasure/internal/domain"
)

// Watcher turns pending deletion request documents into queued erase tasks.
type Watcher struct {
	store   ports.DocumentStore
	queue   ports.TaskEnqueuer
	catalog domain.Catalog
	log     zerolog.Logger
	now     func() time.Time
}

// NewWatcher builds a watcher over the catalog's request collection.
func NewWatcher(store ports.DocumentStore, queue ports.TaskEnqueuer, catalog domain.Catalog, log zerolog.Logger) *Watcher {
	return &Watcher{
		store:   store,
		queue:   queue,
		catalog: catalog,
		log:     log.With().Str("component", "intake").Logger(),
		now:     time.Now,
	}
}

// Run listens for pending requests until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info().Str("collection", w.catalog.RequestsCollection).Msg("watching deletion requests")
	return w.store.Listen(ctx, w.catalog.RequestsCollection, domain.RequestFieldStatus, string(domain.RequestPending),
		func(docs []domain.Document) { w.handle(ctx, docs) })
}

// handle marks each request queued before enqueueing, so the next snapshot no longer
// contains it. A request that cannot be enqueued is marked failed rather than retried.
func (w *Watcher) handle(ctx context.Context, docs []domain.Document) {
	for _, doc := range docs {
		log := w.log.With().Str("request_id", doc.Ref.ID).Logger()
		req, ok := domain.DeletionRequestFromDocument(doc)
		if !ok {
			log.Warn().Msg("deletion request without user id")
			w.setStatus(ctx, log, doc.Ref, domain.RequestFailed, "")
			continue
		}
		if !w.setStatus(ctx, log, doc.Ref, domain.RequestQueued, "") {
			continue
		}
		err := w.queue.EnqueueErase(ctx, ports.EraseTask{
			UserID:          req.UserID,
			ProfilePhotoRef: req.ProfilePhotoRef,
			RequestID:       req.ID,
			Actor:           ActorIntake,
		})
		if err != nil {
			log.Error().Err(err).Str("user_id", req.UserID.String()).Msg("enqueue erase task failed")
			w.setStatus(ctx, log, doc.Ref, domain.RequestFailed, "")
			continue
		}
		log.Info().Str("user_id", req.UserID.String()).Msg("deletion request queued")
	}
}

func (w *Watcher) setStatus(ctx context.Context, log zerolog.Logger, ref domain.DocumentRef, status domain.DeletionRequestStatus, runID string) bool {
	if err := updateStatus(ctx, w.store, ref, status, runID, w.now()); err != nil {
		log.Error().Err(err).Str("status", string(status)).Msg("update deletion request failed")
		return false
	}
	return true
}

// Finish records the outcome of a run on its request document.
func Finish(ctx context.Context, store ports.DocumentStore, catalog domain.Catalog, requestID string, report domain.Report) error {
	status := domain.RequestCompleted
	if !report.Success {
		status = domain.RequestFailed
	}
	return updateStatus(ctx, store, domain.Ref(catalog.RequestsCollection, requestID), status, report.RunID, time.Now())
}

func updateStatus(ctx context.Context, store ports.DocumentStore, ref domain.DocumentRef, status domain.DeletionRequestStatus, runID string, at time.Time) error {
	fields := map[string]interface{}{
		domain.RequestFieldStatus:    string(status),
		domain.RequestFieldUpdatedAt: at,
	}
	if runID != "" {
		fields[domain.RequestFieldRunID] = runID
	}
	return store.Update(ctx, ref, fields)
}
