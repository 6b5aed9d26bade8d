package app

import (
	"intent-scheduler/internal/common/logging"
	"intent-scheduler/internal/common/ratelimit"
	"intent-scheduler/internal/handlers"
	"intent-scheduler/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all HTTP routes for the application. /health,
// /metrics and the worker protocol sit outside the rate limiter: probes and
// scrapes never see 429, and a worker is never refused a fire after a claim.
func SetupRoutes(router *mux.Router, h *handlers.Handlers, rateLimiter ratelimit.Limiter, registry *prometheus.Registry) {
	router.Use(middleware.RequestID, middleware.Logging(logging.ForComponent("http")))

	h.RegisterHealth(router)
	if registry != nil {
		router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")
	}

	h.RegisterWorker(router)

	api := router.NewRoute().Subrouter()
	if rateLimiter != nil {
		api.Use(ratelimit.HTTPMiddleware(rateLimiter, ratelimit.UserKey, logging.ForComponent("ratelimit")))
	}
	h.Register(api)
}
