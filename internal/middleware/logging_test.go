package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"intent-scheduler/internal/common/logging"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogging(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{name: "success", status: http.StatusOK, wantLevel: "INFO"},
		{name: "client error", status: http.StatusUnprocessableEntity, wantLevel: "WARN"},
		{name: "server error", status: http.StatusServiceUnavailable, wantLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := logging.NewZapLogger(logging.LogConfig{Level: logging.DebugLevel, Output: &buf})
			require.NoError(t, err)

			router := mux.NewRouter()
			router.Use(RequestID, Logging(logger))
			router.HandleFunc("/api/triggers/{id}", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/triggers/t1?x=1", nil)
			req.Header.Set("X-User-ID", "u1")
			req.Header.Set(RequestIDHeader, "req-42")
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			out := buf.String()
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, out, tt.wantLevel)
			assert.Contains(t, out, "HTTP request completed")
			assert.Contains(t, out, "/api/triggers/{id}")
			assert.Contains(t, out, "u1")
			assert.Contains(t, out, "req-42")
			assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
		})
	}
}

func TestRequestIDGeneratedWhenMissing(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logging.RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))

	rec2 := httptest.NewRecorder()
	handler.ServeHTTP(rec2, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEqual(t, seen, rec2.Header().Get(RequestIDHeader))
}

func TestResponseWriterDefaultsToOK(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}

	_, err := rw.Write([]byte("ok"))
	require.NoError(t, err)
	rw.WriteHeader(http.StatusTeapot)

	assert.Equal(t, http.StatusOK, rw.statusCode)
	assert.Equal(t, http.StatusOK, rec.Code)
}
