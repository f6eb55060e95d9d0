package erasure

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	"github.com/amirhosseinghanipour/erasure/internal/domain"
	domerrors "github.com/amirhosseinghanipour/erasure/internal/domain/errors"
)

// DeleteStep removes every record in a collection owned by the user. With several owner
// fields (referrer and referred) each field is queried and deleted concurrently and the
// results are merged.
type DeleteStep struct {
	target domain.DeleteTarget
	batch  batcher
	log    zerolog.Logger
}

func newDeleteStep(target domain.DeleteTarget, b batcher, log zerolog.Logger) *DeleteStep {
	return &DeleteStep{
		target: target,
		batch:  b,
		log:    log.With().Str("step", target.Name).Str("collection", target.Collection).Logger(),
	}
}

func (s *DeleteStep) Name() string { return s.target.Name }

func (s *DeleteStep) Run(ctx context.Context, userID domain.UserID) domain.StepResult {
	if len(s.target.OwnerFields) == 1 {
		return s.deleteBy(ctx, s.target.OwnerFields[0], userID)
	}
	parts := make([]domain.StepResult, len(s.target.OwnerFields))
	var g errgroup.Group
	for i, field := range s.target.OwnerFields {
		g.Go(func() error {
			parts[i] = s.deleteBy(ctx, field, userID)
			return nil
		})
	}
	_ = g.Wait()
	res := domain.StepResult{Step: s.target.Name, Collection: s.target.Collection}
	for _, p := range parts {
		res = res.Merge(p)
	}
	return res
}

func (s *DeleteStep) deleteBy(ctx context.Context, field string, userID domain.UserID) domain.StepResult {
	log := s.log.With().Str("user_id", userID.String()).Str("owner_field", field).Logger()
	res := domain.StepResult{Step: s.target.Name, Collection: s.target.Collection}
	docs, truncated, err := s.batch.query(ctx, s.target.Collection, field, userID.String())
	if err != nil {
		log.Error().Err(err).Msg("query owned records failed")
		res.Failed = true
		return res
	}
	return deleteDocs(ctx, log, s.batch, res, docs, truncated)
}

// SubcollectionStep empties one subcollection under the user document. The store does not
// cascade deletes from a parent document to its children.
type SubcollectionStep struct {
	name    string
	catalog domain.Catalog
	batch   batcher
	log     zerolog.Logger
}

func newSubcollectionStep(name string, catalog domain.Catalog, b batcher, log zerolog.Logger) *SubcollectionStep {
	return &SubcollectionStep{
		name:    name,
		catalog: catalog,
		batch:   b,
		log:     log.With().Str("step", "user_"+name).Logger(),
	}
}

func (s *SubcollectionStep) Name() string { return "user_" + s.name }

func (s *SubcollectionStep) Run(ctx context.Context, userID domain.UserID) domain.StepResult {
	collection := s.catalog.UserRef(userID).Sub(s.name)
	log := s.log.With().Str("user_id", userID.String()).Str("collection", collection).Logger()
	res := domain.StepResult{Step: s.Name(), Collection: collection}
	docs, truncated, err := s.batch.list(ctx, collection)
	if err != nil {
		log.Error().Err(err).Msg("list subcollection failed")
		res.Failed = true
		return res
	}
	return deleteDocs(ctx, log, s.batch, res, docs, truncated)
}

func deleteDocs(ctx context.Context, log zerolog.Logger, b batcher, res domain.StepResult, docs []domain.Document, truncated bool) domain.StepResult {
	res.Matched = len(docs)
	res.Truncated = truncated
	if len(docs) == 0 {
		return res
	}
	ops := make([]domain.WriteOp, 0, len(docs))
	for _, doc := range docs {
		ops = append(ops, domain.DeleteOp(doc.Ref))
	}
	res.Processed, res.Failed = b.commit(ctx, log, ops)
	if truncated {
		warnTruncated(log, b, res.Matched)
	}
	log.Debug().Int("matched", res.Matched).Int("processed", res.Processed).Bool("failed", res.Failed).Msg("records deleted")
	return res
}

// DocumentStep deletes a single known document (risk score, root user document).
// A missing document counts as success with nothing matched.
type DocumentStep struct {
	name  string
	ref   func(domain.UserID) domain.DocumentRef
	store ports.DocumentStore
	log   zerolog.Logger
}

func newDocumentStep(name string, ref func(domain.UserID) domain.DocumentRef, store ports.DocumentStore, log zerolog.Logger) *DocumentStep {
	return &DocumentStep{name: name, ref: ref, store: store, log: log.With().Str("step", name).Logger()}
}

func (s *DocumentStep) Name() string { return s.name }

func (s *DocumentStep) Run(ctx context.Context, userID domain.UserID) domain.StepResult {
	ref := s.ref(userID)
	res := domain.StepResult{Step: s.name, Collection: ref.Collection}
	doc, err := s.store.Get(ctx, ref)
	if err != nil {
		// unknown; delete anyway
		s.log.Warn().Err(err).Str("user_id", userID.String()).Str("path", ref.Path()).Msg("read document before delete failed")
	} else if doc == nil {
		return res
	}
	res.Matched = 1
	if err := s.store.Delete(ctx, ref); err != nil && !errors.Is(err, domerrors.ErrDocumentNotFound) {
		s.log.Error().Err(err).Str("user_id", userID.String()).Str("path", ref.Path()).Msg("delete document failed")
		res.Failed = true
		return res
	}
	res.Processed = 1
	return res
}
