package handlers

import (
	"net/http"
	"strconv"

	"intent-scheduler/internal/common/pagination"
	"intent-scheduler/internal/models"
	"intent-scheduler/internal/triggers"

	"github.com/gorilla/mux"
)

// Trigger management handlers. Every route here acts for the user in the
// X-User-ID header; triggers owned by someone else are reported as missing.

// CreateTrigger creates a trigger
// @Summary Create trigger
// @Tags triggers
// @Accept json
// @Produce json
// @Param trigger body models.TriggerDefinition true "Trigger definition"
// @Success 201 {object} models.Trigger
// @Failure 422 {object} validation.ValidationResult "Every reason the definition was rejected"
// @Router /triggers [post]
func (h *Handlers) CreateTrigger(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var def models.TriggerDefinition
	if !h.decodeJSON(w, r, &def) {
		return
	}

	trigger, err := h.service.Create(r.Context(), userID, def)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSONResponse(w, http.StatusCreated, trigger)
}

// ValidateTrigger runs the create-time checks without storing anything
// @Summary Validate trigger definition
// @Tags triggers
// @Accept json
// @Produce json
// @Success 200 {object} validation.ValidationResult
// @Router /triggers/validate [post]
func (h *Handlers) ValidateTrigger(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var def models.TriggerDefinition
	if !h.decodeJSON(w, r, &def) {
		return
	}

	result, err := h.service.ValidateDefinition(r.Context(), userID, def)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSONResponse(w, http.StatusOK, result)
}

// ListTriggers returns the caller's triggers, one page at a time
// @Summary List triggers
// @Tags triggers
// @Produce json
// @Param kind query string false "Filter by kind"
// @Param enabled query boolean false "Filter by enabled state"
// @Param page query int false "Page number"
// @Param per_page query int false "Results per page"
// @Success 200 {object} pagination.Response[models.Trigger]
// @Router /triggers [get]
func (h *Handlers) ListTriggers(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	kind := models.Kind(q.Get("kind"))
	var enabled *bool
	if raw := q.Get("enabled"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			h.sendJSONResponse(w, http.StatusBadRequest, errorResponse{Error: "enabled must be true or false"})
			return
		}
		enabled = &parsed
	}

	params := pagination.ParseParams(r)
	list, total, err := h.service.List(r.Context(), userID, kind, enabled, params.Limit, params.Offset)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSONResponse(w, http.StatusOK, pagination.NewResponse(list, params.Page, params.PerPage, total))
}

// GetTrigger returns one trigger
// @Summary Get trigger
// @Tags triggers
// @Produce json
// @Param id path string true "Trigger ID"
// @Success 200 {object} models.Trigger
// @Failure 404 {object} errorResponse
// @Router /triggers/{id} [get]
func (h *Handlers) GetTrigger(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	trigger, err := h.service.Get(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSONResponse(w, http.StatusOK, trigger)
}

// UpdateTrigger patches a trigger; enabled=false disables it manually
// @Summary Update trigger
// @Tags triggers
// @Accept json
// @Produce json
// @Param id path string true "Trigger ID"
// @Param patch body models.TriggerPatch true "Fields to change"
// @Success 200 {object} models.Trigger
// @Router /triggers/{id} [patch]
func (h *Handlers) UpdateTrigger(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var patch models.TriggerPatch
	if !h.decodeJSON(w, r, &patch) {
		return
	}

	trigger, err := h.service.Update(r.Context(), userID, mux.Vars(r)["id"], patch)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	h.sendJSONResponse(w, http.StatusOK, trigger)
}

// DeleteTrigger removes a trigger and its history
// @Summary Delete trigger
// @Tags triggers
// @Param id path string true "Trigger ID"
// @Success 204
// @Router /triggers/{id} [delete]
func (h *Handlers) DeleteTrigger(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		h.sendError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type historyResponse struct {
	Executions []*models.ExecutionRecord `json:"executions"`
	Total      int                       `json:"total"`
	Limit      int                       `json:"limit"`
	Offset     int                       `json:"offset"`
}

// GetTriggerHistory returns executions newest first
// @Summary Trigger execution history
// @Tags triggers
// @Produce json
// @Param id path string true "Trigger ID"
// @Param limit query int false "Max records (default 50, max 100)"
// @Param offset query int false "Records to skip"
// @Success 200 {object} historyResponse
// @Router /triggers/{id}/history [get]
func (h *Handlers) GetTriggerHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	window := pagination.ParseWindow(r, triggers.DefaultHistoryLimit, triggers.MaxHistoryLimit)
	records, total, err := h.service.History(r.Context(), userID, mux.Vars(r)["id"], window.Limit, window.Offset)
	if err != nil {
		h.sendError(w, r, err)
		return
	}
	if records == nil {
		records = []*models.ExecutionRecord{}
	}
	h.sendJSONResponse(w, http.StatusOK, historyResponse{
		Executions: records,
		Total:      total,
		Limit:      window.Limit,
		Offset:     window.Offset,
	})
}
