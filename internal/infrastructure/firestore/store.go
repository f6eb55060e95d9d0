package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	"github.com/amirhosseinghanipour/erasure/internal/domain"
	domerrors "github.com/amirhosseinghanipour/erasure/internal/domain/errors"
)

const (
	commitAttempts = 3
	commitBackoff  = 500 * time.Millisecond
)

// Store implements ports.DocumentStore on Cloud Firestore.
type Store struct {
	client *firestore.Client
}

func NewStore(client *firestore.Client) *Store {
	return &Store{client: client}
}

func (s *Store) collection(path string) (*firestore.CollectionRef, error) {
	col := s.client.Collection(path)
	if col == nil {
		return nil, fmt.Errorf("invalid collection path %q", path)
	}
	return col, nil
}

func (s *Store) doc(ref domain.DocumentRef) (*firestore.DocumentRef, error) {
	col, err := s.collection(ref.Collection)
	if err != nil {
		return nil, err
	}
	return col.Doc(ref.ID), nil
}

func (s *Store) Query(ctx context.Context, collection, field string, value interface{}, limit int) ([]domain.Document, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	q := col.Where(field, "==", value)
	if limit > 0 {
		q = q.Limit(limit)
	}
	docs, err := collect(q.Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("query %s where %s: %w", collection, field, err)
	}
	return docs, nil
}

func (s *Store) QueryAfter(ctx context.Context, collection, field string, value interface{}, afterID string, limit int) ([]domain.Document, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	q := col.Where(field, "==", value).OrderBy(firestore.DocumentID, firestore.Asc)
	if afterID != "" {
		q = q.StartAfter(afterID)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	docs, err := collect(q.Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("query %s where %s after %q: %w", collection, field, afterID, err)
	}
	return docs, nil
}

func (s *Store) List(ctx context.Context, collection string, limit int) ([]domain.Document, error) {
	col, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	q := col.Query
	if limit > 0 {
		q = q.Limit(limit)
	}
	docs, err := collect(q.Documents(ctx))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return docs, nil
}

// Commit writes ops in one atomic batch, retrying transient failures with exponential backoff.
func (s *Store) Commit(ctx context.Context, ops []domain.WriteOp) error {
	if len(ops) == 0 {
		return nil
	}
	if len(ops) > ports.MaxBatchWrites {
		return domerrors.ErrBatchTooLarge
	}
	backoff := commitBackoff
	var err error
	for attempt := 1; attempt <= commitAttempts; attempt++ {
		if err = s.commitOnce(ctx, ops); err == nil || !retryable(err) {
			return err
		}
		if attempt == commitAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return err
}

func (s *Store) commitOnce(ctx context.Context, ops []domain.WriteOp) error {
	batch := s.client.Batch()
	for _, op := range ops {
		ref, err := s.doc(op.Ref)
		if err != nil {
			return err
		}
		switch op.Kind {
		case domain.WriteUpdate:
			batch.Update(ref, updates(op.Fields))
		case domain.WriteDelete:
			batch.Delete(ref)
		}
	}
	if _, err := batch.Commit(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("commit batch: %w", domerrors.ErrDocumentNotFound)
		}
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, ref domain.DocumentRef) (*domain.Document, error) {
	d, err := s.doc(ref)
	if err != nil {
		return nil, err
	}
	snap, err := d.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", ref.Path(), err)
	}
	doc := toDocument(snap)
	return &doc, nil
}

func (s *Store) Set(ctx context.Context, ref domain.DocumentRef, fields map[string]interface{}) error {
	d, err := s.doc(ref)
	if err != nil {
		return err
	}
	if _, err := d.Set(ctx, fields); err != nil {
		return fmt.Errorf("set %s: %w", ref.Path(), err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, ref domain.DocumentRef, fields map[string]interface{}) error {
	d, err := s.doc(ref)
	if err != nil {
		return err
	}
	if _, err := d.Update(ctx, updates(fields)); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("update %s: %w", ref.Path(), domerrors.ErrDocumentNotFound)
		}
		return fmt.Errorf("update %s: %w", ref.Path(), err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, ref domain.DocumentRef) error {
	d, err := s.doc(ref)
	if err != nil {
		return err
	}
	if _, err := d.Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("delete %s: %w", ref.Path(), err)
	}
	return nil
}

// Listen streams query snapshots until ctx is done.
func (s *Store) Listen(ctx context.Context, collection, field string, value interface{}, fn func([]domain.Document)) error {
	col, err := s.collection(collection)
	if err != nil {
		return err
	}
	it := col.Where(field, "==", value).Snapshots(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if ctx.Err() != nil || status.Code(err) == codes.Canceled {
			return nil
		}
		if err != nil {
			return fmt.Errorf("listen %s: %w", collection, err)
		}
		docs, err := collect(snap.Documents)
		if err != nil {
			return fmt.Errorf("read snapshot %s: %w", collection, err)
		}
		fn(docs)
	}
}

func collect(it *firestore.DocumentIterator) ([]domain.Document, error) {
	defer it.Stop()
	var out []domain.Document
	for {
		snap, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, toDocument(snap))
	}
}

func toDocument(snap *firestore.DocumentSnapshot) domain.Document {
	return domain.Document{
		Ref:  domain.Ref(relativePath(snap.Ref.Parent.Path), snap.Ref.ID),
		Data: snap.Data(),
	}
}

// relativePath strips "projects/<p>/databases/<d>/documents/" from a resource name.
func relativePath(full string) string {
	const marker = "/documents/"
	if i := strings.Index(full, marker); i >= 0 {
		return full[i+len(marker):]
	}
	return full
}

// updates builds field-path updates so that keys containing dots are not split.
func updates(fields map[string]interface{}) []firestore.Update {
	out := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		out = append(out, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
	}
	return out
}

func retryable(err error) bool {
	switch status.Code(err) {
	case codes.Aborted, codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return true
	}
	return false
}

var _ ports.DocumentStore = (*Store)(nil)
