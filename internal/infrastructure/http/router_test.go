package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirhosseinghanipour/erasure/internal/application/erasure"
	"github.com/amirhosseinghanipour/erasure/internal/application/intake"
	"github.com/amirhosseinghanipour/erasure/internal/domain"
	"github.com/amirhosseinghanipour/erasure/internal/infrastructure/http/handlers"
	"github.com/amirhosseinghanipour/erasure/internal/infrastructure/http/middleware"
	"github.com/amirhosseinghanipour/erasure/internal/infrastructure/persistence/memory"
	"github.com/amirhosseinghanipour/erasure/internal/infrastructure/queue"
	"github.com/amirhosseinghanipour/erasure/internal/infrastructure/webhook"
)

const adminSecret = "s3cret"

type tokens map[string]string

func (t tokens) Verify(_ context.Context, token string) (string, error) {
	if uid, ok := t[token]; ok {
		return uid, nil
	}
	return "", errors.New("unknown token")
}

type server struct {
	handler http.Handler
	store   *memory.Store
	blobs   *memory.BlobStore
	ledger  *memory.RunLedger
	queue   *queue.InlineEnqueuer
}

func newServer(t *testing.T) *server {
	t.Helper()
	log := zerolog.Nop()
	store := memory.NewStore()
	blobs := memory.NewBlobStore()
	ledger := memory.NewRunLedger()
	catalog := domain.DefaultCatalog()
	orch := erasure.NewOrchestrator(store, blobs, catalog, erasure.Options{}, log, erasure.WithLedger(ledger))
	proc := intake.NewProcessor(orch, store, catalog, webhook.NewLogEmitter(log), log)
	q := queue.NewInlineEnqueuer(proc, log)

	h := NewRouter(RouterConfig{
		UsersHandler: handlers.NewUsersHandler(q, proc, log),
		AdminHandler: handlers.NewAdminHandler(proc, orch, ledger, proc, log),
		RequireAuth:  middleware.NewAuthValidator(tokens{"tok-u1": "u1"}).Handler,
		RequireAdmin: middleware.RequireAdminSecret(adminSecret, nil),
		Log:          log,
	})
	t.Cleanup(orch.Wait)
	return &server{handler: h, store: store, blobs: blobs, ledger: ledger, queue: q}
}

func (s *server) seed(t *testing.T, uid string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.store.Set(ctx, domain.Ref("users", uid), map[string]interface{}{"profilePhotoURL": "gs://b/" + uid + ".jpg"}))
	require.NoError(t, s.store.Set(ctx, domain.Ref("receipts", "r-"+uid), map[string]interface{}{"userId": uid, "userName": "Ada", "amount": 5}))
	require.NoError(t, s.store.Set(ctx, domain.Ref("notifications", "n-"+uid), map[string]interface{}{"userId": uid}))
	s.blobs.Put("gs://b/" + uid + ".jpg")
}

func (s *server) do(method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func admin() map[string]string { return map[string]string{middleware.AdminSecretHeader: adminSecret} }

func TestHealth(t *testing.T) {
	s := newServer(t)
	rec := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDeleteMeQueuesErasure(t *testing.T) {
	s := newServer(t)
	s.seed(t, "u1")

	rec := s.do(http.MethodDelete, "/users/me", "", map[string]string{"Authorization": "Bearer tok-u1"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"status":"queued","user_id":"u1"}`, rec.Body.String())

	s.queue.Wait()
	doc, err := s.store.Get(context.Background(), domain.Ref("users", "u1"))
	require.NoError(t, err)
	assert.Nil(t, doc)
	assert.False(t, s.blobs.Exists("gs://b/u1.jpg"))
	assert.Equal(t, 0, s.store.Count("notifications"))

	ref, err := s.ledger.Latest(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, ref)
	assert.True(t, ref.Success)
}

func TestDeleteMeRequiresToken(t *testing.T) {
	s := newServer(t)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodDelete, "/users/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		s.do(http.MethodDelete, "/users/me", "", map[string]string{"Authorization": "Bearer other"}).Code)
}

func TestAdminEraseReturnsReport(t *testing.T) {
	s := newServer(t)
	s.seed(t, "u2")

	rec := s.do(http.MethodPost, "/admin/users/u2/erase", `{"reason":"banned"}`, admin())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report domain.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Success)
	assert.Equal(t, domain.RunCompleted, report.State)
	assert.True(t, report.PhotoDeleted)
	step, ok := report.Step("receipts")
	require.True(t, ok)
	assert.Equal(t, 1, step.Processed)

	rec = s.do(http.MethodGet, "/admin/users/u2/residue", "", admin())
	require.Equal(t, http.StatusOK, rec.Code)
	var res struct {
		Clean bool `json:"clean"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Clean)

	rec = s.do(http.MethodGet, "/admin/users/u2/runs/latest", "", admin())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), report.RunID)
}

func TestAdminEraseMissingPhotoIsPartialFailure(t *testing.T) {
	s := newServer(t)
	require.NoError(t, s.store.Set(context.Background(), domain.Ref("users", "u3"), map[string]interface{}{}))

	rec := s.do(http.MethodPost, "/admin/users/u3/erase", `{"profile_photo_ref":"gs://b/missing.jpg"}`, admin())
	require.Equal(t, http.StatusMultiStatus, rec.Code)

	rec = s.do(http.MethodGet, "/admin/runs/incomplete", "", admin())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"user_id":"u3"`)
}

func TestAdminValidation(t *testing.T) {
	s := newServer(t)

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/admin/users/u1/erase", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/admin/users/u1/erase", `{"max_batches":1000}`, admin()).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/admin/users/u1/erase", `{`, admin()).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/admin/users/"+strings.Repeat("x", 200)+"/residue", "", admin()).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/admin/runs/incomplete?limit=0", "", admin()).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/admin/runs/incomplete?older_than=soon", "", admin()).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/admin/users/nobody/runs/latest", "", admin()).Code)
}

func TestAdminEraseSurvivesClientCancel(t *testing.T) {
	s := newServer(t)
	s.seed(t, "u4")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/admin/users/u4/erase", nil).WithContext(ctx)
	req.Header.Set(middleware.AdminSecretHeader, adminSecret)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Eventually(t, func() bool { return s.store.Count("users") == 0 }, time.Second, 10*time.Millisecond)
}
