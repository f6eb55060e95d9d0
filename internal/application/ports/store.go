package ports

import (
	"context"

	"github.com/amirhosseinghanipour/erasure/internal/domain"
)

// MaxBatchWrites is the largest atomic batch the document store accepts.
const MaxBatchWrites = 500

// DocumentStore is the document database facade.
type DocumentStore interface {
	// Query returns up to limit documents in collection whose field equals value. limit <= 0 means no limit.
	Query(ctx context.Context, collection, field string, value interface{}, limit int) ([]domain.Document, error)
	// QueryAfter is Query ordered by document id, starting after afterID ("" = from the start).
	QueryAfter(ctx context.Context, collection, field string, value interface{}, afterID string, limit int) ([]domain.Document, error)
	// List returns up to limit documents in collection (used for subcollections).
	List(ctx context.Context, collection string, limit int) ([]domain.Document, error)
	// Commit applies ops atomically: all succeed or none do.
	Commit(ctx context.Context, ops []domain.WriteOp) error
	// Get returns nil, nil when the document does not exist.
	Get(ctx context.Context, ref domain.DocumentRef) (*domain.Document, error)
	Set(ctx context.Context, ref domain.DocumentRef, fields map[string]interface{}) error
	// Update merges fields; returns ErrDocumentNotFound when missing.
	Update(ctx context.Context, ref domain.DocumentRef, fields map[string]interface{}) error
	// Delete succeeds when the document is already gone.
	Delete(ctx context.Context, ref domain.DocumentRef) error
	// Listen calls fn with every snapshot of the documents matching field == value until ctx is done.
	Listen(ctx context.Context, collection, field string, value interface{}, fn func([]domain.Document)) error
}

// BlobStore is the object storage facade.
type BlobStore interface {
	// Delete removes the object named by ref (gs:// or download URL). Missing objects yield ErrBlobNotFound.
	Delete(ctx context.Context, ref string) error
}
