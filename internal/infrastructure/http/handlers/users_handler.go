package handlers

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/amirhosseinghanipour/erasure/internal/application/intake"
	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
	"github.com/amirhosseinghanipour/erasure/internal/infrastructure/http/middleware"
)

// UsersHandler handles self-service routes under /users. Requires a bearer token.
type UsersHandler struct {
	queue   ports.TaskEnqueuer
	auditor Auditor
	log     zerolog.Logger
}

func NewUsersHandler(queue ports.TaskEnqueuer, auditor Auditor, log zerolog.Logger) *UsersHandler {
	return &UsersHandler{queue: queue, auditor: auditor, log: log}
}

// DeleteMe handles DELETE /users/me: queues erasure of the caller's account and returns 202.
// The photo reference is read from the user document by the orchestrator.
func (h *UsersHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	uid := middleware.UserIDFromContext(r.Context())
	if uid == "" {
		writeErr(w, http.StatusUnauthorized, "", "unauthorized")
		return
	}
	err := h.queue.EnqueueErase(r.Context(), ports.EraseTask{UserID: uid, Actor: intake.ActorSelf})
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid.String()).Msg("enqueue self erasure failed")
		writeErr(w, http.StatusServiceUnavailable, "", "could not queue account deletion")
		return
	}
	AuditEmit(h.log, r, h.auditor, ports.AuditEvent{
		Event:   intake.EventEraseRequested,
		UserID:  uid.String(),
		Actor:   intake.ActorSelf,
		Success: true,
	}, "")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "user_id": uid.String()})
}
