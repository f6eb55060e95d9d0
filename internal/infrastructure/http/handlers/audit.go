package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/amirhosseinghanipour/erasure/internal/application/ports"
)

// Auditor forwards audit events; implemented by *intake.Processor.
type Auditor interface {
	Emit(ctx context.Context, event ports.AuditEvent)
}

// AuditLog logs an erasure request with its transport context (request id, IP).
func AuditLog(log zerolog.Logger, r *http.Request, event, userID, actor, reason string) {
	ev := log.Info().
		Str("event", event).
		Str("user_id", userID).
		Str("actor", actor).
		Str("ip", getClientIP(r)).
		Str("request_id", middleware.GetReqID(r.Context()))
	if reason != "" {
		ev.Str("reason", reason)
	}
	ev.Msg("erasure_audit")
}

// AuditEmit logs the event and, if auditor is non-nil, forwards it.
func AuditEmit(log zerolog.Logger, r *http.Request, auditor Auditor, event ports.AuditEvent, reason string) {
	AuditLog(log, r, event.Event, event.UserID, event.Actor, reason)
	if auditor != nil {
		auditor.Emit(context.WithoutCancel(r.Context()), event)
	}
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	return r.RemoteAddr
}
