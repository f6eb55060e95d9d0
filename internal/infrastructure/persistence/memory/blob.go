package memory

import (
	"context"
	"sync"

	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	domerrors "github.com/amirhosseinghanipour/erasure/internal/domain/errors"
)

// BlobStore is an in-memory BlobStore keyed by reference string.
type BlobStore struct {
	mu      sync.Mutex
	objects map[string]bool
	deleted []string
}

func NewBlobStore(refs ...string) *BlobStore {
	b := &BlobStore{objects: make(map[string]bool)}
	for _, r := range refs {
		b.objects[r] = true
	}
	return b
}

// Put stores an object under ref.
func (b *BlobStore) Put(ref string) {
	b.mu.Lock()
	b.objects[ref] = true
	b.mu.Unlock()
}

// Exists reports whether ref is stored.
func (b *BlobStore) Exists(ref string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.objects[ref]
}

// Deleted lists refs removed so far, in order.
func (b *BlobStore) Deleted() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.deleted...)
}

func (b *BlobStore) Delete(ctx context.Context, ref string) error {
	if ref == "" {
		return domerrors.ErrInvalidBlobRef
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.objects[ref] {
		return domerrors.ErrBlobNotFound
	}
	delete(b.objects, ref)
	b.deleted = append(b.deleted, ref)
	return nil
}

var _ ports.BlobStore = (*BlobStore)(nil)
