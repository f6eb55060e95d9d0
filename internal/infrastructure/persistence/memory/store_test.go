package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirhosseinghanipour/erasure/internal/domain"
	domerrors "github.com/amirhosseinghanipour/erasure/internal/domain/errors"
)

func TestQueryOrdersAndLimits(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for _, id := range []string{"c", "a", "b", "d"} {
		require.NoError(t, s.Set(ctx, domain.Ref("receipts", id), map[string]interface{}{"userId": "u1"}))
	}
	require.NoError(t, s.Set(ctx, domain.Ref("receipts", "x"), map[string]interface{}{"userId": "u2"}))

	docs, err := s.Query(ctx, "receipts", "userId", "u1", 3)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{docs[0].Ref.ID, docs[1].Ref.ID, docs[2].Ref.ID})

	all, err := s.List(ctx, "receipts", 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestQueryAfterPages(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for _, id := range []string{"c", "a", "e", "b", "d"} {
		require.NoError(t, s.Set(ctx, domain.Ref("receipts", id), map[string]interface{}{"userId": "u1"}))
	}

	page, err := s.QueryAfter(ctx, "receipts", "userId", "u1", "b", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "c", page[0].Ref.ID)
	assert.Equal(t, "d", page[1].Ref.ID)

	rest, err := s.QueryAfter(ctx, "receipts", "userId", "u1", "d", 0)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "e", rest[0].Ref.ID)
}

func TestReturnedDocumentsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Set(ctx, domain.Ref("users", "u1"), map[string]interface{}{"name": "Ada"}))

	doc, err := s.Get(ctx, domain.Ref("users", "u1"))
	require.NoError(t, err)
	doc.Data["name"] = "changed"

	again, err := s.Get(ctx, domain.Ref("users", "u1"))
	require.NoError(t, err)
	assert.Equal(t, "Ada", again.String("name"))
}

func TestCommitIsAtomic(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Set(ctx, domain.Ref("notifications", "n1"), map[string]interface{}{"userId": "u1"}))

	err := s.Commit(ctx, []domain.WriteOp{
		domain.DeleteOp(domain.Ref("notifications", "n1")),
		domain.UpdateOp(domain.Ref("receipts", "missing"), map[string]interface{}{"userName": "Deleted User"}),
	})
	assert.ErrorIs(t, err, domerrors.ErrDocumentNotFound)
	assert.Equal(t, 1, s.Count("notifications"), "nothing applied when one op fails")
	assert.Equal(t, 0, s.Commits())
}

func TestCommitRejectsOversizedBatch(t *testing.T) {
	ops := make([]domain.WriteOp, 501)
	for i := range ops {
		ops[i] = domain.DeleteOp(domain.Ref("c", fmt.Sprint(i)))
	}
	assert.ErrorIs(t, NewStore().Commit(context.Background(), ops), domerrors.ErrBatchTooLarge)
}

func TestUpdateAndDeleteSemantics(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	assert.ErrorIs(t, s.Update(ctx, domain.Ref("users", "none"), map[string]interface{}{"a": 1}), domerrors.ErrDocumentNotFound)
	assert.NoError(t, s.Delete(ctx, domain.Ref("users", "none")))

	doc, err := s.Get(ctx, domain.Ref("users", "none"))
	require.NoError(t, err)
	assert.Nil(t, doc)
}

func TestHooksInjectFailures(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	boom := errors.New("boom")
	s.SetHooks(Hooks{
		Query:  func(collection, field string) error { return boom },
		Commit: func([]domain.WriteOp) error { return boom },
		Delete: func(domain.DocumentRef) error { return boom },
	})
	_, err := s.Query(ctx, "c", "f", "v", 0)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, s.Commit(ctx, nil), boom)
	assert.ErrorIs(t, s.Delete(ctx, domain.Ref("c", "1")), boom)
}

func TestListenDeliversChanges(t *testing.T) {
	s := NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu    sync.Mutex
		sizes []int
	)
	done := make(chan error, 1)
	go func() {
		done <- s.Listen(ctx, "deletionRequests", "status", "pending", func(docs []domain.Document) {
			mu.Lock()
			sizes = append(sizes, len(docs))
			mu.Unlock()
		})
	}()
	last := func() int {
		mu.Lock()
		defer mu.Unlock()
		if len(sizes) == 0 {
			return -1
		}
		return sizes[len(sizes)-1]
	}

	require.Eventually(t, func() bool { return last() == 0 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Set(ctx, domain.Ref("deletionRequests", "r1"), map[string]interface{}{"status": "pending"}))
	require.Eventually(t, func() bool { return last() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Update(ctx, domain.Ref("deletionRequests", "r1"), map[string]interface{}{"status": "queued"}))
	require.Eventually(t, func() bool { return last() == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}

func TestBlobStore(t *testing.T) {
	ctx := context.Background()
	b := NewBlobStore("gs://b/u1.jpg")
	require.NoError(t, b.Delete(ctx, "gs://b/u1.jpg"))
	assert.False(t, b.Exists("gs://b/u1.jpg"))
	assert.Equal(t, []string{"gs://b/u1.jpg"}, b.Deleted())
	assert.ErrorIs(t, b.Delete(ctx, "gs://b/u1.jpg"), domerrors.ErrBlobNotFound)
	assert.ErrorIs(t, b.Delete(ctx, ""), domerrors.ErrInvalidBlobRef)
}

func TestRunLedgerKeepsLatestPerUser(t *testing.T) {
	ctx := context.Background()
	l := NewRunLedger()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.Record(ctx, domain.Report{RunID: "r1", UserID: "u1", Success: false, FinishedAt: t0}))
	require.NoError(t, l.Record(ctx, domain.Report{RunID: "r2", UserID: "u2", Success: true,
		Steps: []domain.StepResult{{Step: "receipts", Truncated: true}}, FinishedAt: t0.Add(time.Minute)}))
	require.NoError(t, l.Record(ctx, domain.Report{RunID: "r3", UserID: "u3", Success: true, FinishedAt: t0}))

	refs, err := l.ListIncomplete(ctx, t0.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, "r1", refs[0].RunID)
	assert.Equal(t, "r2", refs[1].RunID)

	require.NoError(t, l.Record(ctx, domain.Report{RunID: "r4", UserID: "u1", Success: true, FinishedAt: t0.Add(2 * time.Minute)}))
	refs, err = l.ListIncomplete(ctx, t0.Add(time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, domain.UserID("u2"), refs[0].UserID)

	latest, err := l.Latest(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "r4", latest.RunID)
}
