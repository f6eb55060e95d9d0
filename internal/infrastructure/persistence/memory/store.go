package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	"github.com/amirhosseinghanipour/erasure/internal/domain"
	domerrors "github.com/amirhosseinghanipour/erasure/internal/domain/errors"
)

// Hooks inject failures. A non-nil error aborts the call before anything is read or written.
type Hooks struct {
	Query  func(collection, field string) error
	List   func(collection string) error
	Commit func(ops []domain.WriteOp) error
	Delete func(ref domain.DocumentRef) error
}

// Store is an in-memory DocumentStore for development and tests. Batches are applied
// atomically under one lock.
type Store struct {
	mu        sync.RWMutex
	data      map[string]map[string]map[string]interface{} // collection -> id -> fields
	listeners map[int]chan struct{}
	nextID    int
	hooks     Hooks
	commits   int
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		data:      make(map[string]map[string]map[string]interface{}),
		listeners: make(map[int]chan struct{}),
	}
}

// SetHooks replaces the failure hooks.
func (s *Store) SetHooks(h Hooks) {
	s.mu.Lock()
	s.hooks = h
	s.mu.Unlock()
}

// Commits returns how many batches were committed successfully.
func (s *Store) Commits() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.commits
}

// Count returns the number of documents in collection.
func (s *Store) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data[collection])
}

func (s *Store) hooksSnapshot() Hooks {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hooks
}

func (s *Store) Query(ctx context.Context, collection, field string, value interface{}, limit int) ([]domain.Document, error) {
	if h := s.hooksSnapshot().Query; h != nil {
		if err := h(collection, field); err != nil {
			return nil, err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matchLocked(collection, field, value, "", limit), nil
}

func (s *Store) QueryAfter(ctx context.Context, collection, field string, value interface{}, afterID string, limit int) ([]domain.Document, error) {
	if h := s.hooksSnapshot().Query; h != nil {
		if err := h(collection, field); err != nil {
			return nil, err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matchLocked(collection, field, value, afterID, limit), nil
}

func (s *Store) List(ctx context.Context, collection string, limit int) ([]domain.Document, error) {
	if h := s.hooksSnapshot().List; h != nil {
		if err := h(collection); err != nil {
			return nil, err
		}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matchLocked(collection, "", nil, "", limit), nil
}

// matchLocked returns documents ordered by id, after afterID when set. An empty field matches everything.
func (s *Store) matchLocked(collection, field string, value interface{}, afterID string, limit int) []domain.Document {
	docs := s.data[collection]
	ids := make([]string, 0, len(docs))
	for id, fields := range docs {
		if afterID != "" && id <= afterID {
			continue
		}
		if field != "" {
			v, ok := fields[field]
			if !ok || !reflect.DeepEqual(v, value) {
				continue
			}
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]domain.Document, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Document{Ref: domain.Ref(collection, id), Data: copyFields(docs[id])})
	}
	return out
}

func (s *Store) Commit(ctx context.Context, ops []domain.WriteOp) error {
	if len(ops) > ports.MaxBatchWrites {
		return domerrors.ErrBatchTooLarge
	}
	if h := s.hooksSnapshot().Commit; h != nil {
		if err := h(ops); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		if op.Kind == domain.WriteUpdate && s.getLocked(op.Ref) == nil {
			return fmt.Errorf("update %s: %w", op.Ref.Path(), domerrors.ErrDocumentNotFound)
		}
	}
	for _, op := range ops {
		switch op.Kind {
		case domain.WriteUpdate:
			doc := s.getLocked(op.Ref)
			for k, v := range op.Fields {
				doc[k] = v
			}
		case domain.WriteDelete:
			delete(s.data[op.Ref.Collection], op.Ref.ID)
		}
	}
	s.commits++
	s.notifyLocked()
	return nil
}

func (s *Store) Get(ctx context.Context, ref domain.DocumentRef) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fields := s.getLocked(ref)
	if fields == nil {
		return nil, nil
	}
	return &domain.Document{Ref: ref, Data: copyFields(fields)}, nil
}

func (s *Store) getLocked(ref domain.DocumentRef) map[string]interface{} {
	return s.data[ref.Collection][ref.ID]
}

func (s *Store) Set(ctx context.Context, ref domain.DocumentRef, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[ref.Collection] == nil {
		s.data[ref.Collection] = make(map[string]map[string]interface{})
	}
	s.data[ref.Collection][ref.ID] = copyFields(fields)
	s.notifyLocked()
	return nil
}

func (s *Store) Update(ctx context.Context, ref domain.DocumentRef, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.getLocked(ref)
	if doc == nil {
		return fmt.Errorf("update %s: %w", ref.Path(), domerrors.ErrDocumentNotFound)
	}
	for k, v := range fields {
		doc[k] = v
	}
	s.notifyLocked()
	return nil
}

func (s *Store) Delete(ctx context.Context, ref domain.DocumentRef) error {
	if h := s.hooksSnapshot().Delete; h != nil {
		if err := h(ref); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[ref.Collection], ref.ID)
	s.notifyLocked()
	return nil
}

// Listen delivers the current matching set immediately and again after every write.
func (s *Store) Listen(ctx context.Context, collection, field string, value interface{}, fn func([]domain.Document)) error {
	changed := make(chan struct{}, 1)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = changed
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}()

	for {
		s.mu.RLock()
		snap := s.matchLocked(collection, field, value, "", 0)
		s.mu.RUnlock()
		fn(snap)
		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		}
	}
}

func (s *Store) notifyLocked() {
	for _, ch := range s.listeners {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func copyFields(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ ports.DocumentStore = (*Store)(nil)
