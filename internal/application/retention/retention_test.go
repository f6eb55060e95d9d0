package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirhosseinghanipour/erasure/internal/application/erasure"
	"github.com/amirhosseinghanipour/erasure/internal/application/intake"
	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	"github.com/amirhosseinghanipour/erasure/internal/domain"
	"github.com/amirhosseinghanipour/erasure/internal/infrastructure/persistence/memory"
)

var settled = FollowUpConfig{SettleFor: 30 * time.Minute, MaxBatches: 2}

type harness struct {
	ctx    context.Context
	store  *memory.Store
	blobs  *memory.BlobStore
	ledger *memory.RunLedger
	orch   *erasure.Orchestrator
	proc   *intake.Processor
	hook   *recordingWebhook
}

func newHarness(t *testing.T, opts erasure.Options, blobs ports.BlobStore) *harness {
	t.Helper()
	h := &harness{
		ctx:    context.Background(),
		store:  memory.NewStore(),
		blobs:  memory.NewBlobStore(),
		ledger: memory.NewRunLedger(),
		hook:   &recordingWebhook{},
	}
	if blobs == nil {
		blobs = h.blobs
	}
	anHourAgo := func() time.Time { return time.Now().Add(-time.Hour) }
	catalog := domain.DefaultCatalog()
	h.orch = erasure.NewOrchestrator(h.store, blobs, catalog, opts, zerolog.Nop(),
		erasure.WithLedger(h.ledger), erasure.WithClock(anHourAgo))
	h.proc = intake.NewProcessor(h.orch, h.store, catalog, h.hook, zerolog.Nop())
	return h
}

func (h *harness) put(t *testing.T, collection, id string, fields map[string]interface{}) {
	t.Helper()
	require.NoError(t, h.store.Set(h.ctx, domain.Ref(collection, id), fields))
}

func (h *harness) latest(t *testing.T, uid domain.UserID) *domain.RunRef {
	t.Helper()
	ref, err := h.ledger.Latest(h.ctx, uid)
	require.NoError(t, err)
	require.NotNil(t, ref)
	return ref
}

func TestRunFollowUps_DrainsTruncatedRun(t *testing.T) {
	h := newHarness(t, erasure.Options{}, nil)
	for i := 0; i < 460; i++ {
		h.put(t, "receipts", fmt.Sprintf("r%03d", i), map[string]interface{}{"userId": "u3", "userName": "Ada"})
	}
	first := h.orch.Delete(h.ctx, erasure.Request{UserID: "u3"})
	require.True(t, first.Truncated())

	rerun, still, err := RunFollowUps(h.ctx, h.ledger, h.proc, settled, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, rerun)
	assert.Equal(t, 0, still)

	res, err := h.orch.Residue(h.ctx, "u3")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Unscrubbed["receipts"])

	rerun, _, err = RunFollowUps(h.ctx, h.ledger, h.proc, settled, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0, rerun, "clean run leaves the incomplete list")
}

func TestRunFollowUps_AnonymizeProgressesPastScrubbedRecords(t *testing.T) {
	h := newHarness(t, erasure.Options{BatchCapacity: 2}, nil)
	for i := 0; i < 7; i++ {
		h.put(t, "receipts", fmt.Sprintf("r%d", i), map[string]interface{}{"userId": "u7", "userName": "Ada"})
	}
	first := h.orch.Delete(h.ctx, erasure.Request{UserID: "u7"})
	step, _ := first.Step("receipts")
	require.Equal(t, 2, step.Processed, "regular runs keep the one-batch budget")
	require.True(t, step.Truncated)

	rerun, still, err := RunFollowUps(h.ctx, h.ledger, h.proc, settled, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, rerun)
	assert.Equal(t, 1, still, "five left, budget of four")
	res, err := h.orch.Residue(h.ctx, "u7")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Unscrubbed["receipts"])

	rerun, still, err = RunFollowUps(h.ctx, h.ledger, h.proc, settled, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, rerun)
	assert.Equal(t, 0, still)
	res, err = h.orch.Residue(h.ctx, "u7")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Unscrubbed["receipts"])
	assert.True(t, h.latest(t, "u7").Success)
}

func TestRunFollowUps_RetriesPhotoAfterUserDocumentIsGone(t *testing.T) {
	ref := "gs://bucket/profiles/u8.jpg"
	blobs := &flakyBlobs{BlobStore: memory.NewBlobStore(ref), failures: 1}
	h := newHarness(t, erasure.Options{}, blobs)
	h.put(t, "users", "u8", map[string]interface{}{"name": "Ada", "profilePhotoURL": ref})

	first := h.orch.Delete(h.ctx, erasure.Request{UserID: "u8"})
	require.False(t, first.Success)
	require.False(t, first.PhotoDeleted)
	require.True(t, first.UserDeleted)

	rerun, still, err := RunFollowUps(h.ctx, h.ledger, h.proc, settled, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, rerun)
	assert.Equal(t, 0, still)
	assert.False(t, blobs.Exists(ref))
	latest := h.latest(t, "u8")
	assert.True(t, latest.Success)
	assert.True(t, latest.PhotoDeleted)
}

func TestRunFollowUps_MissingPhotoConvergesOnFollowUp(t *testing.T) {
	h := newHarness(t, erasure.Options{}, nil)
	first := h.orch.Delete(h.ctx, erasure.Request{UserID: "u4", ProfilePhotoRef: "gs://bucket/profiles/u4.jpg"})
	require.False(t, first.Success)

	rerun, still, err := RunFollowUps(h.ctx, h.ledger, h.proc, settled, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, rerun)
	assert.Equal(t, 0, still)
	assert.True(t, h.latest(t, "u4").Success)
}

func TestRunFollowUps_CompletesFailedRequest(t *testing.T) {
	h := newHarness(t, erasure.Options{}, nil)
	h.put(t, "users", "u1", map[string]interface{}{"name": "Ada"})
	h.put(t, "deletionRequests", "req1", map[string]interface{}{"userId": "u1", "status": "queued"})
	h.store.SetHooks(memory.Hooks{Query: func(collection, field string) error {
		if collection == "notifications" {
			return errors.New("unavailable")
		}
		return nil
	}})
	first := h.proc.Process(h.ctx, ports.EraseTask{UserID: "u1", RequestID: "req1", Actor: intake.ActorIntake})
	require.False(t, first.Success)
	h.store.SetHooks(memory.Hooks{})

	rerun, still, err := RunFollowUps(h.ctx, h.ledger, h.proc, settled, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, rerun)
	assert.Equal(t, 0, still)

	doc, err := h.store.Get(h.ctx, domain.Ref("deletionRequests", "req1"))
	require.NoError(t, err)
	assert.Equal(t, "completed", doc.String("status"))
	assert.Equal(t, "req1", h.latest(t, "u1").RequestID)

	events := h.hook.all()
	require.Len(t, events, 2)
	assert.Equal(t, intake.ActorFollowUp, events[1].Actor)
	assert.True(t, events[1].Success)
}

func TestRunFollowUps_SkipsRecentRuns(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewRunLedger()
	require.NoError(t, ledger.Record(ctx, domain.Report{RunID: "r1", UserID: "u1", Success: false, FinishedAt: time.Now()}))
	runner := &stubRunner{}

	rerun, _, err := RunFollowUps(ctx, ledger, runner, FollowUpConfig{SettleFor: time.Hour}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0, rerun)
	assert.Empty(t, runner.tasks)
}

func TestRunFollowUps_BuildsFollowUpTask(t *testing.T) {
	ctx := context.Background()
	ledger := memory.NewRunLedger()
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, ledger.Record(ctx, domain.Report{RunID: "r1", UserID: "u1", RequestID: "req9", Success: false, FinishedAt: old, PhotoRef: "gs://b/p.jpg"}))
	require.NoError(t, ledger.Record(ctx, domain.Report{RunID: "r2", UserID: "u2", Success: false, FinishedAt: old.Add(time.Minute), PhotoRef: "gs://b/q.jpg", PhotoDeleted: true}))
	runner := &stubRunner{report: domain.Report{RunID: "r3", Success: false}}

	rerun, still, err := RunFollowUps(ctx, ledger, runner, FollowUpConfig{SettleFor: time.Hour, MaxBatches: 5}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 2, rerun)
	assert.Equal(t, 2, still)
	require.Len(t, runner.tasks, 2)
	assert.Equal(t, ports.EraseTask{
		UserID:          "u1",
		ProfilePhotoRef: "gs://b/p.jpg",
		RequestID:       "req9",
		MaxBatches:      5,
		Actor:           intake.ActorFollowUp,
		FollowUp:        true,
	}, runner.tasks[0])
	assert.Empty(t, runner.tasks[1].ProfilePhotoRef, "deleted photo is not retried")
}

func TestRunFollowUps_LedgerError(t *testing.T) {
	_, _, err := RunFollowUps(context.Background(), failingLedger{}, &stubRunner{}, FollowUpConfig{}, zerolog.Nop())
	assert.Error(t, err)
}

type stubRunner struct {
	report domain.Report
	tasks  []ports.EraseTask
}

func (s *stubRunner) Process(ctx context.Context, task ports.EraseTask) domain.Report {
	s.tasks = append(s.tasks, task)
	return s.report
}

type failingLedger struct{ *memory.RunLedger }

func (failingLedger) ListIncomplete(context.Context, time.Time, int) ([]domain.RunRef, error) {
	return nil, errors.New("connection refused")
}

// flakyBlobs fails the first deletes with a transient error.
type flakyBlobs struct {
	*memory.BlobStore
	mu       sync.Mutex
	failures int
}

func (f *flakyBlobs) Delete(ctx context.Context, ref string) error {
	f.mu.Lock()
	if f.failures > 0 {
		f.failures--
		f.mu.Unlock()
		return errors.New("storage: 503 backend unavailable")
	}
	f.mu.Unlock()
	return f.BlobStore.Delete(ctx, ref)
}

type recordingWebhook struct {
	mu     sync.Mutex
	events []ports.AuditEvent
}

func (w *recordingWebhook) Emit(ctx context.Context, e ports.AuditEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, e)
	return nil
}

func (w *recordingWebhook) all() []ports.AuditEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]ports.AuditEvent(nil), w.events...)
}
