package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	apperrors "intent-scheduler/internal/common/errors"
	"intent-scheduler/internal/common/logging"
	"intent-scheduler/internal/storage"
	"intent-scheduler/internal/storage/sqlstore"
	"intent-scheduler/internal/triggers"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 7, 18, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type apiTrigger struct {
	ID             string     `json:"id"`
	UserID         string     `json:"user_id"`
	Kind           string     `json:"kind"`
	Enabled        bool       `json:"enabled"`
	NextCheck      *time.Time `json:"next_check"`
	DisabledReason *string    `json:"disabled_reason"`
	ExecutionCount int        `json:"execution_count"`
	Action         json.RawMessage
}

type testAPI struct {
	router *mux.Router
	clock  *clock
	checks map[string]HealthCheck
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store, err := sqlstore.Open(context.Background(), storage.Config{
		Type:         "sqlite",
		SQLitePath:   filepath.Join(t.TempDir(), "api.db"),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	c := &clock{now: t0}
	svc := triggers.NewService(store, triggers.Options{Now: c.Now, Logger: logging.NewNopLogger()})

	api := &testAPI{router: mux.NewRouter(), clock: c, checks: map[string]HealthCheck{}}
	h := New(svc, api.checks, logging.NewNopLogger())
	h.RegisterHealth(api.router)
	h.RegisterWorker(api.router)
	h.Register(api.router)
	return api
}

func (a *testAPI) do(t *testing.T, method, path, user string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (a *testAPI) createInterval(t *testing.T, user string, minutes int) apiTrigger {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/triggers", user, map[string]interface{}{
		"name":     "check in",
		"kind":     "interval",
		"schedule": map[string]interface{}{"interval_minutes": minutes},
		"action":   map[string]interface{}{"template": "nudge"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[apiTrigger](t, rec)
}

func TestCreateAndGet(t *testing.T) {
	api := newTestAPI(t)

	created := api.createInterval(t, "u1", 30)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "u1", created.UserID)
	assert.True(t, created.Enabled)
	require.NotNil(t, created.NextCheck)
	assert.True(t, t0.Add(30*time.Minute).Equal(*created.NextCheck))
	assert.JSONEq(t, `{"template":"nudge"}`, string(created.Action))

	rec := api.do(t, http.MethodGet, "/api/triggers/"+created.ID, "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decode[apiTrigger](t, rec).ID)

	rec = api.do(t, http.MethodGet, "/api/triggers/"+created.ID, "u2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "other users' triggers are invisible")

	rec = api.do(t, http.MethodGet, "/api/triggers/"+created.ID, "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateValidationFailureListsEveryReason(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/triggers", "u1", map[string]interface{}{
		"kind":     "cron",
		"schedule": map[string]interface{}{"cron": "* * * * *", "timezone": "Mars/Olympus"},
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decode[struct {
		Valid  *bool    `json:"valid"`
		Errors []string `json:"errors"`
	}](t, rec)
	require.NotNil(t, body.Valid)
	assert.False(t, *body.Valid)
	assert.Len(t, body.Errors, 3, "%v", body.Errors)
}

func TestCreateMalformedJSON(t *testing.T) {
	api := newTestAPI(t)
	rec := api.do(t, http.MethodPost, "/api/triggers", "u1", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateEndpoint(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodPost, "/api/triggers/validate", "u1", map[string]interface{}{
		"name": "x", "kind": "interval", "schedule": map[string]interface{}{"interval_minutes": 2},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"valid":false,"errors":["schedule.interval_minutes must be at least 5 (got 2)"]}`, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/triggers/validate", "u1", map[string]interface{}{
		"name": "x", "kind": "interval", "schedule": map[string]interface{}{"interval_minutes": 5},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]interface{}](t, rec)["valid"])

	rec = api.do(t, http.MethodGet, "/api/triggers", "u1", nil)
	assert.Equal(t, float64(0), decode[map[string]interface{}](t, rec)["total_results"], "validate stores nothing")
}

func TestListPagination(t *testing.T) {
	api := newTestAPI(t)
	for i := 0; i < 3; i++ {
		api.createInterval(t, "u1", 10+i)
	}
	api.createInterval(t, "u2", 10)

	rec := api.do(t, http.MethodGet, "/api/triggers?per_page=2&page=2&kind=interval&enabled=true", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	page := decode[struct {
		Page         int          `json:"page"`
		PerPage      int          `json:"per_page"`
		TotalPages   int          `json:"total_pages"`
		TotalResults int          `json:"total_results"`
		Results      []apiTrigger `json:"results"`
	}](t, rec)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.TotalPages)
	assert.Equal(t, 3, page.TotalResults)
	assert.Len(t, page.Results, 1)

	rec = api.do(t, http.MethodGet, "/api/triggers?enabled=maybe", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkerLoop(t *testing.T) {
	api := newTestAPI(t)
	created := api.createInterval(t, "u1", 10)
	api.clock.Advance(10 * time.Minute)

	rec := api.do(t, http.MethodGet, "/api/triggers/pending?user_id=u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[struct {
		Triggers []apiTrigger `json:"triggers"`
		Count    int          `json:"count"`
	}](t, rec)
	require.Equal(t, 1, pending.Count)
	assert.Equal(t, created.ID, pending.Triggers[0].ID)

	rec = api.do(t, http.MethodPost, "/api/triggers/"+created.ID+"/claim", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = api.do(t, http.MethodPost, "/api/triggers/"+created.ID+"/claim", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "lease_held", decode[map[string]interface{}](t, rec)["code"])

	rec = api.do(t, http.MethodGet, "/api/triggers/pending", "", nil)
	assert.Equal(t, float64(0), decode[map[string]interface{}](t, rec)["count"], "claimed triggers are not pending")

	rec = api.do(t, http.MethodPost, "/api/triggers/"+created.ID+"/fire", "", map[string]interface{}{
		"status":          "success",
		"message_id":      "m-1",
		"idempotency_key": "run-1",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fired := decode[struct {
		ExecutionCount int        `json:"execution_count"`
		NextCheck      *time.Time `json:"next_check"`
		ExecutionID    string     `json:"execution_id"`
		Duplicate      bool       `json:"duplicate"`
	}](t, rec)
	assert.Equal(t, 1, fired.ExecutionCount)
	require.NotNil(t, fired.NextCheck)
	assert.True(t, t0.Add(20*time.Minute).Equal(*fired.NextCheck))
	assert.False(t, fired.Duplicate)

	rec = api.do(t, http.MethodPost, "/api/triggers/"+created.ID+"/fire", "", map[string]interface{}{
		"status":          "success",
		"idempotency_key": "run-1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode[map[string]interface{}](t, rec)["duplicate"])

	rec = api.do(t, http.MethodPost, "/api/triggers/"+created.ID+"/fire", "", map[string]string{"status": "exploded"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/triggers/"+created.ID+"/history?limit=500", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := decode[struct {
		Executions []map[string]interface{} `json:"executions"`
		Total      int                      `json:"total"`
		Limit      int                      `json:"limit"`
	}](t, rec)
	assert.Equal(t, 1, history.Total)
	assert.Equal(t, triggers.MaxHistoryLimit, history.Limit)
	require.Len(t, history.Executions, 1)
	assert.Equal(t, "m-1", history.Executions[0]["message_id"])

	rec = api.do(t, http.MethodPost, "/api/triggers/missing/claim", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateAndDelete(t *testing.T) {
	api := newTestAPI(t)
	created := api.createInterval(t, "u1", 10)

	rec := api.do(t, http.MethodPatch, "/api/triggers/"+created.ID, "u1", map[string]interface{}{"enabled": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[apiTrigger](t, rec)
	assert.False(t, updated.Enabled)
	assert.Nil(t, updated.NextCheck)
	require.NotNil(t, updated.DisabledReason)
	assert.Equal(t, "manual", *updated.DisabledReason)

	rec = api.do(t, http.MethodPatch, "/api/triggers/"+created.ID, "u1", map[string]interface{}{
		"schedule": map[string]interface{}{"interval_minutes": 1},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = api.do(t, http.MethodDelete, "/api/triggers/"+created.ID, "u2", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(t, http.MethodDelete, "/api/triggers/"+created.ID, "u1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = api.do(t, http.MethodGet, "/api/triggers/"+created.ID, "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"store":"ok"}}`, rec.Body.String())

	api.checks["redis"] = func(context.Context) error { return errors.New("connection refused") }
	rec = api.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable","checks":{"store":"ok","redis":"connection refused"}}`, rec.Body.String())
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperrors.ValidationError("bad"), http.StatusUnprocessableEntity},
		{apperrors.NotFoundError("trigger"), http.StatusNotFound},
		{apperrors.ConflictError("claimed"), http.StatusConflict},
		{apperrors.StorageError("fire", errors.New("disk")), http.StatusServiceUnavailable},
		{apperrors.RateLimitError("api"), http.StatusTooManyRequests},
		{fmt.Errorf("wrapped: %w", apperrors.NotFoundError("trigger")), http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}
