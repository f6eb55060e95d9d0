package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger is a dependency that can report liveness (the Postgres run ledger).
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves /health with optional ledger and Redis checks.
type HealthHandler struct {
	ledger Pinger
	redis  *redis.Client
}

// NewHealthHandler creates a health handler (both checks optional).
func NewHealthHandler(ledger Pinger, redisClient *redis.Client) *HealthHandler {
	return &HealthHandler{ledger: ledger, redis: redisClient}
}

type healthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks,omitempty"`
	Message string            `json:"message,omitempty"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]string)
	allOK := true
	check := func(name string, err error) {
		if err != nil {
			checks[name] = "down: " + err.Error()
			allOK = false
			return
		}
		checks[name] = "ok"
	}

	if h.ledger != nil {
		check("database", h.ledger.Ping(ctx))
	}
	if h.redis != nil {
		check("redis", h.redis.Ping(ctx).Err())
	}

	if !allOK {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status:  "unhealthy",
			Checks:  checks,
			Message: "one or more checks failed",
		})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Checks: checks})
}
