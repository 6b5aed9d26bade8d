package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	apperrors "intent-scheduler/internal/common/errors"
	"intent-scheduler/internal/common/logging"
	"intent-scheduler/internal/triggers"
)

// UserHeader carries the caller's user id. Authentication happens upstream.
const UserHeader = "X-User-ID"

// HealthCheck is an extra dependency probed by /health.
type HealthCheck func(ctx context.Context) error

type Handlers struct {
	service *triggers.Service
	checks  map[string]HealthCheck
	logger  logging.Logger
}

// New creates the HTTP handlers over service. checks are reported by /health
// next to the store.
func New(service *triggers.Service, checks map[string]HealthCheck, logger logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.ForComponent("handlers")
	}
	return &Handlers{
		service: service,
		checks:  checks,
		logger:  logger,
	}
}

type errorResponse struct {
	Error string   `json:"error"`
	Type  string   `json:"type,omitempty"`
	Code  string   `json:"code,omitempty"`
	Valid *bool    `json:"valid,omitempty"`
	Items []string `json:"errors,omitempty"`
}

func (h *Handlers) sendJSONResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", err)
	}
}

// sendError maps err to a status code. Validation failures use the
// {valid, errors} shape of the validate endpoint.
func (h *Handlers) sendError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		appErr = apperrors.InternalError("unhandled request error", err)
	}

	resp := errorResponse{Error: appErr.Message, Type: string(appErr.Type), Code: appErr.Code}
	if appErr.Type == apperrors.ErrTypeValidation {
		valid := false
		resp.Valid = &valid
		resp.Items = appErr.Details
		if len(resp.Items) == 0 {
			resp.Items = []string{appErr.Message}
		}
	}
	if status >= http.StatusInternalServerError {
		h.logger.WithContext(r.Context()).Error("Request failed", err, logging.String("path", r.URL.Path))
		if appErr.Type == apperrors.ErrTypeInternal {
			resp.Error = "internal server error"
		}
	}
	h.sendJSONResponse(w, status, resp)
}

func statusFor(err error) int {
	switch apperrors.GetType(err) {
	case apperrors.ErrTypeValidation:
		return http.StatusUnprocessableEntity
	case apperrors.ErrTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrTypeConflict:
		return http.StatusConflict
	case apperrors.ErrTypeStorage, apperrors.ErrTypeConnection:
		return http.StatusServiceUnavailable
	case apperrors.ErrTypeRateLimit:
		return http.StatusTooManyRequests
	case apperrors.ErrTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads the body into dst. Malformed JSON is a 400, not a 422:
// there is no definition to validate yet.
func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		h.sendJSONResponse(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

// requireUser returns the caller's user id or writes a 400.
func (h *Handlers) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get(UserHeader)
	if userID == "" {
		h.sendJSONResponse(w, http.StatusBadRequest, errorResponse{Error: UserHeader + " header is required"})
		return "", false
	}
	return userID, true
}
