package app

import (
	"net/http"

	"intent-scheduler/internal/common/logging"
	"intent-scheduler/internal/handlers"
	"intent-scheduler/internal/server"

	"github.com/gorilla/mux"
)

// Handler builds the full HTTP handler: API, health and metrics.
func (app *App) Handler() http.Handler {
	checks := map[string]handlers.HealthCheck{}
	if app.RedisClient != nil {
		checks["redis"] = app.RedisClient.Health
	}

	h := handlers.New(app.Service, checks, logging.ForComponent("handlers"))

	router := mux.NewRouter()
	SetupRoutes(router, h, app.RateLimiter, app.Registry)
	return router
}

// NewServer wraps Handler in an HTTP server on the configured port.
func (app *App) NewServer() *server.Server {
	return server.New(app.Handler(), app.Config.Port, logging.ForComponent("server"))
}
