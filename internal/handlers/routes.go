package handlers

import (
	"net/http"

	"intent-scheduler/internal/common/logging"

	"github.com/gorilla/mux"
)

// RegisterHealth mounts the liveness probe.
func (h *Handlers) RegisterHealth(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
}

// RegisterWorker mounts the worker protocol: pending, claim and fire. It must
// be registered before Register so /pending is not captured as an {id}.
func (h *Handlers) RegisterWorker(router *mux.Router) {
	api := router.PathPrefix("/api/triggers").Subrouter()
	api.Use(tagTrigger)
	api.HandleFunc("/pending", h.GetPendingTriggers).Methods(http.MethodGet)
	api.HandleFunc("/{id}/claim", h.ClaimTrigger).Methods(http.MethodPost)
	api.HandleFunc("/{id}/fire", h.FireTrigger).Methods(http.MethodPost)
}

// Register mounts the user-facing trigger API on router.
func (h *Handlers) Register(router *mux.Router) {
	api := router.PathPrefix("/api/triggers").Subrouter()
	api.Use(tagTrigger)
	api.HandleFunc("", h.CreateTrigger).Methods(http.MethodPost)
	api.HandleFunc("", h.ListTriggers).Methods(http.MethodGet)
	api.HandleFunc("/validate", h.ValidateTrigger).Methods(http.MethodPost)
	api.HandleFunc("/{id}", h.GetTrigger).Methods(http.MethodGet)
	api.HandleFunc("/{id}", h.UpdateTrigger).Methods(http.MethodPatch)
	api.HandleFunc("/{id}", h.DeleteTrigger).Methods(http.MethodDelete)
	api.HandleFunc("/{id}/history", h.GetTriggerHistory).Methods(http.MethodGet)
}

// tagTrigger stores the {id} path variable on the context for log correlation.
func tagTrigger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithTriggerID(r.Context(), mux.Vars(r)["id"])
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
