package erasure

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	"github.com/amirhosseinghanipour/erasure/internal/domain"
)

// DefaultBatchCapacity is the number of writes committed per atomic batch.
const DefaultBatchCapacity = 450

// batcher reads a bounded page of documents and commits writes in capacity-sized batches.
// One run processes at most capacity*maxBatches documents per query; anything beyond is
// left for a later pass and reported as truncated.
type batcher struct {
	store      ports.DocumentStore
	capacity   int
	maxBatches int
}

func (b batcher) budget() int { return b.capacity * b.maxBatches }

// trim cuts docs to the budget. The extra document fetched past the budget only signals truncation.
func (b batcher) trim(docs []domain.Document) ([]domain.Document, bool) {
	if len(docs) > b.budget() {
		return docs[:b.budget()], true
	}
	return docs, false
}

func (b batcher) query(ctx context.Context, collection, field string, value interface{}) ([]domain.Document, bool, error) {
	docs, err := b.store.Query(ctx, collection, field, value, b.budget()+1)
	if err != nil {
		return nil, false, err
	}
	docs, truncated := b.trim(docs)
	return docs, truncated, nil
}

// queryPending pages through field == value in id order, skipping documents for which done
// reports true, until one more than the budget is pending or the results run out. Documents
// already handled by an earlier run therefore never use up the budget.
func (b batcher) queryPending(ctx context.Context, collection, field string, value interface{}, done func(domain.Document) bool) ([]domain.Document, bool, error) {
	pageSize := b.budget() + 1
	var (
		pending []domain.Document
		after   string
	)
	for len(pending) <= b.budget() {
		page, err := b.store.QueryAfter(ctx, collection, field, value, after, pageSize)
		if err != nil {
			return nil, false, err
		}
		for _, doc := range page {
			if !done(doc) {
				pending = append(pending, doc)
			}
		}
		if len(page) < pageSize {
			break
		}
		after = page[len(page)-1].Ref.ID
	}
	pending, truncated := b.trim(pending)
	return pending, truncated, nil
}

func (b batcher) list(ctx context.Context, collection string) ([]domain.Document, bool, error) {
	docs, err := b.store.List(ctx, collection, b.budget()+1)
	if err != nil {
		return nil, false, err
	}
	docs, truncated := b.trim(docs)
	return docs, truncated, nil
}

// commit writes ops in batches. A failed batch does not stop the remaining ones.
func (b batcher) commit(ctx context.Context, log zerolog.Logger, ops []domain.WriteOp) (processed int, failed bool) {
	for start := 0; start < len(ops); start += b.capacity {
		end := start + b.capacity
		if end > len(ops) {
			end = len(ops)
		}
		if err := b.store.Commit(ctx, ops[start:end]); err != nil {
			log.Error().Err(err).Int("batch_start", start).Int("batch_size", end-start).Msg("batch commit failed")
			failed = true
			continue
		}
		processed += end - start
	}
	return processed, failed
}

func warnTruncated(log zerolog.Logger, b batcher, matched int) {
	log.Warn().
		Int("limit", b.budget()).
		Int("processed_max", matched).
		Bool("skipped_unknown", true).
		Msg("batch capacity reached; remaining documents left for a follow-up pass")
}
