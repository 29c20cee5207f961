// Package http assembles the chi route tree and the HTTP server.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/PriorArt-Intelligence/internal/interfaces/http/handlers"
	"github.com/turtacn/PriorArt-Intelligence/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware of the route tree.
// Nil handlers leave their routes unmounted.
type RouterConfig struct {
	AnalysisHandler *handlers.AnalysisHandler
	AlertHandler    *handlers.AlertHandler
	HealthHandler   *handlers.HealthHandler

	// RateLimiter, when set, limits /api/v1 per owner.
	RateLimiter middleware.RateLimiter

	Logger         logging.Logger
	Metrics        *prometheus.AppMetrics
	MetricsHandler http.Handler
}

// NewRouter builds the complete route tree.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogging(cfg.Logger, cfg.Metrics, middleware.DefaultLoggingConfig()))

	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Owner(cfg.Logger))
		if cfg.RateLimiter != nil {
			api.Use(middleware.RateLimit(cfg.RateLimiter))
		}
		registerAnalysisRoutes(api, cfg.AnalysisHandler)
		registerAlertRoutes(api, cfg.AlertHandler)
	})

	return r
}

func registerAnalysisRoutes(r chi.Router, h *handlers.AnalysisHandler) {
	if h == nil {
		return
	}
	r.Route("/analyses", func(ar chi.Router) {
		ar.Post("/", h.Submit)
		ar.Get("/{id}", h.Get)
	})
}

func registerAlertRoutes(r chi.Router, h *handlers.AlertHandler) {
	if h == nil {
		return
	}
	r.Route("/alerts", func(ar chi.Router) {
		ar.Get("/", h.List)
		ar.Post("/", h.Create)
		ar.Post("/evaluate", h.Evaluate)

		ar.Route("/{id}", func(item chi.Router) {
			item.Get("/", h.Get)
			item.Patch("/", h.Update)
			item.Delete("/", h.Delete)
			item.Post("/pause", h.Pause)
			item.Post("/resume", h.Resume)
			item.Get("/notifications", h.AlertNotifications)
		})
	})
	r.Route("/notifications", func(nr chi.Router) {
		nr.Get("/", h.OwnerNotifications)
		nr.Post("/{id}/read", h.MarkRead)
	})
}
