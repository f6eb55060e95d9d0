package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/amirhosseinghanipour/erasure/internal/infrastructure/http/handlers"
	"github.com/amirhosseinghanipour/erasure/internal/infrastructure/http/middleware"
)

type RouterConfig struct {
	HealthHandler *handlers.HealthHandler
	UsersHandler  *handlers.UsersHandler
	AdminHandler  *handlers.AdminHandler
	RequireAuth   func(http.Handler) http.Handler // bearer token for /users/*
	RequireAdmin  func(http.Handler) http.Handler // X-Erasure-Admin-Secret for /admin/*
	Log           zerolog.Logger
	Secure        func(http.Handler) http.Handler
	CORS          func(http.Handler) http.Handler
	IPRateLimit   func(http.Handler) http.Handler
	UserRateLimit func(http.Handler) http.Handler
	Metrics       bool // expose /metrics
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimid.RequestID)
	r.Use(chimid.RealIP)
	r.Use(loggerMiddleware(cfg.Log))
	r.Use(chimid.Recoverer)
	if cfg.Metrics {
		r.Use(middleware.PrometheusMiddleware)
	}
	if cfg.Secure != nil {
		r.Use(cfg.Secure)
	}
	if cfg.CORS != nil {
		r.Use(cfg.CORS)
	}
	if cfg.IPRateLimit != nil {
		r.Use(cfg.IPRateLimit)
	}

	if cfg.HealthHandler != nil {
		r.Get("/health", cfg.HealthHandler.ServeHTTP)
	} else {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
	}
	if cfg.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	if cfg.UsersHandler != nil && cfg.RequireAuth != nil {
		r.Route("/users", func(r chi.Router) {
			r.Use(cfg.RequireAuth)
			if cfg.UserRateLimit != nil {
				r.Use(cfg.UserRateLimit)
			}
			r.Delete("/me", cfg.UsersHandler.DeleteMe)
		})
	}

	if cfg.AdminHandler != nil && cfg.RequireAdmin != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(cfg.RequireAdmin)
			r.Use(chimid.AllowContentType("application/json"))
			r.Post("/users/{id}/erase", cfg.AdminHandler.Erase)
			r.Get("/users/{id}/residue", cfg.AdminHandler.Residue)
			r.Get("/users/{id}/runs/latest", cfg.AdminHandler.LatestRun)
			r.Get("/runs/incomplete", cfg.AdminHandler.IncompleteRuns)
		})
	}

	return r
}

func loggerMiddleware(log zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimid.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info().
				Str("request_id", chimid.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Msg("request")
		})
	}
}
