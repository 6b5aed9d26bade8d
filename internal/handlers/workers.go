package handlers

import (
	"net/http"
	"strconv"

	"intent-scheduler/internal/models"

	"github.com/gorilla/mux"
)

// Worker handlers: the poll, claim and report loop. These do not need
// X-User-ID; a worker may serve every user.

type pendingResponse struct {
	Triggers []models.PendingTrigger `json:"triggers"`
	Count    int                     `json:"count"`
}

// GetPendingTriggers lists due, unleased triggers
// @Summary Pending triggers
// @Tags workers
// @Produce json
// @Param user_id query string false "Only this user's triggers"
// @Param limit query int false "Max triggers (default and cap 100)"
// @Success 200 {object} pendingResponse
// @Router /triggers/pending [get]
func (h *Handlers) GetPendingTriggers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	pending, err := h.service.Pending(r.Context(), q.Get("user_id"), limit)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	if pending == nil {
		pending = []models.PendingTrigger{}
	}
	h.sendJSONResponse(w, http.StatusOK, pendingResponse{Triggers: pending, Count: len(pending)})
}

// ClaimTrigger leases a trigger to the caller for the lease duration
// @Summary Claim trigger
// @Tags workers
// @Produce json
// @Param id path string true "Trigger ID"
// @Success 200 {object} models.ClaimResult
// @Failure 409 {object} errorResponse "Already claimed or disabled"
// @Router /triggers/{id}/claim [post]
func (h *Handlers) ClaimTrigger(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Claim(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSONResponse(w, http.StatusOK, res)
}

// FireTrigger records a worker's outcome and advances the schedule
// @Summary Report fire outcome
// @Tags workers
// @Accept json
// @Produce json
// @Param id path string true "Trigger ID"
// @Param outcome body models.FireOutcome true "Outcome"
// @Success 200 {object} models.FireResult
// @Router /triggers/{id}/fire [post]
func (h *Handlers) FireTrigger(w http.ResponseWriter, r *http.Request) {
	var outcome models.FireOutcome
	if !h.decodeJSON(w, r, &outcome) {
		return
	}

	res, err := h.service.Fire(r.Context(), mux.Vars(r)["id"], outcome)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSONResponse(w, http.StatusOK, res)
}
