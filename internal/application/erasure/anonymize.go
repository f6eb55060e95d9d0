package erasure

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/amirhosseinghanipour/erasure/internal/domain"
)

// AnonymizeStep scrubs PII fields on records owned by the user. The records themselves
// (ids and every other field) are kept as an audit trail.
type AnonymizeStep struct {
	target   domain.AnonymizeTarget
	batch    batcher
	detached *detacher
	log      zerolog.Logger
}

func newAnonymizeStep(target domain.AnonymizeTarget, b batcher, d *detacher, log zerolog.Logger) *AnonymizeStep {
	return &AnonymizeStep{
		target:   target,
		batch:    b,
		detached: d,
		log:      log.With().Str("step", target.Name).Str("collection", target.Collection).Logger(),
	}
}

func (s *AnonymizeStep) Name() string { return s.target.Name }

func (s *AnonymizeStep) Run(ctx context.Context, userID domain.UserID) domain.StepResult {
	log := s.log.With().Str("user_id", userID.String()).Logger()
	res, posts := s.scrub(ctx, log, s.target, s.target.Collection, userID)
	if s.target.Replies != nil {
		s.scrubRepliesDetached(ctx, userID, posts)
	}
	return res
}

func (s *AnonymizeStep) scrub(ctx context.Context, log zerolog.Logger, target domain.AnonymizeTarget, collection string, userID domain.UserID) (domain.StepResult, []domain.Document) {
	res := domain.StepResult{Step: target.Name, Collection: collection}
	alreadyScrubbed := func(doc domain.Document) bool { return scrubbed(doc, target.Scrub) }
	docs, truncated, err := s.batch.queryPending(ctx, collection, target.OwnerField, userID.String(), alreadyScrubbed)
	if err != nil {
		log.Error().Err(err).Msg("query owned records failed")
		res.Failed = true
		return res, nil
	}
	res.Matched = len(docs)
	res.Truncated = truncated
	if len(docs) == 0 {
		return res, nil
	}
	ops := make([]domain.WriteOp, 0, len(docs))
	for _, doc := range docs {
		ops = append(ops, domain.UpdateOp(doc.Ref, target.Scrub))
	}
	res.Processed, res.Failed = s.batch.commit(ctx, log, ops)
	if truncated {
		warnTruncated(log, s.batch, res.Matched)
	}
	log.Debug().Int("matched", res.Matched).Int("processed", res.Processed).Bool("failed", res.Failed).Msg("records anonymized")
	return res, docs
}

// scrubRepliesDetached anonymizes the user's replies under each of their posts on detached
// goroutines. Reply failures are logged only; they never reach the parent step result.
func (s *AnonymizeStep) scrubRepliesDetached(ctx context.Context, userID domain.UserID, posts []domain.Document) {
	replies := *s.target.Replies
	for _, post := range posts {
		sub := post.Ref.Sub(replies.Collection)
		s.detached.Go(ctx, func(ctx context.Context) {
			log := s.log.With().Str("user_id", userID.String()).Str("replies", sub).Logger()
			res, _ := s.scrub(ctx, log, replies, sub, userID)
			if res.Failed {
				log.Warn().Msg("reply anonymization failed (best effort, not counted)")
			}
		})
	}
}
