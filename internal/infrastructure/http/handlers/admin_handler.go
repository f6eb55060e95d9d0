package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/amirhosseinghanipour/erasure/internal/application/erasure"
	"github.com/amirhosseinghanipour/erasure/internal/application/intake"
	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	"github.com/amirhosseinghanipour/erasure/internal/domain"
)

// TaskRunner runs an erase task synchronously; implemented by *intake.Processor.
type TaskRunner interface {
	Process(ctx context.Context, task ports.EraseTask) domain.Report
}

// ResidueInspector reports data left behind for a user; implemented by *erasure.Orchestrator.
type ResidueInspector interface {
	Residue(ctx context.Context, userID domain.UserID) (*erasure.Residue, error)
}

// AdminHandler handles /admin/* (forced erasure, residue check, run ledger). Requires X-Erasure-Admin-Secret.
type AdminHandler struct {
	runner    TaskRunner
	inspector ResidueInspector
	ledger    ports.RunLedger
	auditor   Auditor
	validate  *validator.Validate
	log       zerolog.Logger
}

// NewAdminHandler creates the admin handler.
func NewAdminHandler(runner TaskRunner, inspector ResidueInspector, ledger ports.RunLedger, auditor Auditor, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		runner:    runner,
		inspector: inspector,
		ledger:    ledger,
		auditor:   auditor,
		validate:  validator.New(),
		log:       log,
	}
}

type eraseBody struct {
	ProfilePhotoRef string `json:"profile_photo_ref" validate:"omitempty,max=2048"`
	Reason          string `json:"reason" validate:"omitempty,max=500"`
	MaxBatches      int    `json:"max_batches" validate:"omitempty,min=1,max=100"`
}

// Erase handles POST /admin/users/:id/erase (e.g. banned users). Body is optional:
// { "profile_photo_ref", "reason", "max_batches" }. Runs to completion regardless of the
// client disconnecting and returns the report; 200 on success, 207 when any step failed.
func (h *AdminHandler) Erase(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	var body eraseBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeErr(w, http.StatusBadRequest, "", "invalid body")
		return
	}
	if err := h.validate.Struct(&body); err != nil {
		writeErr(w, http.StatusBadRequest, "", err.Error())
		return
	}
	reason := strings.TrimSpace(body.Reason)
	AuditEmit(h.log, r, h.auditor, ports.AuditEvent{
		Event:   intake.EventEraseRequested,
		UserID:  uid.String(),
		Actor:   intake.ActorAdmin,
		Success: true,
	}, reason)

	report := h.runner.Process(r.Context(), ports.EraseTask{
		UserID:          uid,
		ProfilePhotoRef: strings.TrimSpace(body.ProfilePhotoRef),
		MaxBatches:      body.MaxBatches,
		Actor:           intake.ActorAdmin,
	})
	code := http.StatusOK
	if !report.Success {
		code = http.StatusMultiStatus
	}
	writeJSON(w, code, report)
}

// Residue handles GET /admin/users/:id/residue.
func (h *AdminHandler) Residue(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	res, err := h.inspector.Residue(r.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid.String()).Msg("residue check failed")
		writeErr(w, http.StatusInternalServerError, "", "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"clean":   res.Clean(),
		"residue": res,
	})
}

// LatestRun handles GET /admin/users/:id/runs/latest.
func (h *AdminHandler) LatestRun(w http.ResponseWriter, r *http.Request) {
	uid, ok := h.userID(w, r)
	if !ok {
		return
	}
	ref, err := h.ledger.Latest(r.Context(), uid)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid.String()).Msg("latest run lookup failed")
		writeErr(w, http.StatusInternalServerError, "", "internal error")
		return
	}
	if ref == nil {
		writeErr(w, http.StatusNotFound, "", "no recorded run for user")
		return
	}
	writeJSON(w, http.StatusOK, runView(*ref))
}

// IncompleteRuns handles GET /admin/runs/incomplete?limit=N&older_than=1h.
func (h *AdminHandler) IncompleteRuns(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > MaxRunsListed {
			writeErr(w, http.StatusBadRequest, "", "limit must be between 1 and 500")
			return
		}
		limit = n
	}
	var olderThan time.Duration
	if s := r.URL.Query().Get("older_than"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			writeErr(w, http.StatusBadRequest, "", "older_than must be a duration like 1h")
			return
		}
		olderThan = d
	}
	refs, err := h.ledger.ListIncomplete(r.Context(), time.Now().Add(-olderThan), limit)
	if err != nil {
		h.log.Error().Err(err).Msg("list incomplete runs failed")
		writeErr(w, http.StatusInternalServerError, "", "internal error")
		return
	}
	runs := make([]map[string]interface{}, 0, len(refs))
	for _, ref := range refs {
		runs = append(runs, runView(ref))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (h *AdminHandler) userID(w http.ResponseWriter, r *http.Request) (domain.UserID, bool) {
	uid, err := SanitizeUserID(chi.URLParam(r, "id"))
	if err != nil {
		writeErr(w, http.StatusBadRequest, ErrCodeInvalidUserID, "invalid user id")
		return "", false
	}
	return uid, true
}

func runView(ref domain.RunRef) map[string]interface{} {
	view := map[string]interface{}{
		"run_id":        ref.RunID,
		"user_id":       ref.UserID.String(),
		"success":       ref.Success,
		"truncated":     ref.Truncated,
		"photo_deleted": ref.PhotoDeleted,
		"finished_at":   ref.FinishedAt,
	}
	if ref.RequestID != "" {
		view["request_id"] = ref.RequestID
	}
	return view
}
