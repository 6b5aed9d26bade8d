package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"intent-scheduler/internal/common/utils"
	"intent-scheduler/internal/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Load()
	cfg.DatabaseType = "sqlite"
	cfg.DatabasePath = filepath.Join(t.TempDir(), "app.db")
	cfg.DBMaxOpenConns = "1"
	cfg.RedisAddress = ""
	cfg.RateLimitEnabled = true
	cfg.RateLimitDefault = "2"
	cfg.RateLimitWindow = "1h"
	cfg.MetricsEnabled = true
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestAppServesAPI(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)
	defer app.Cleanup()
	handler := app.Handler()

	create := func() int {
		body := `{"name":"ping","kind":"interval","schedule":{"interval_minutes":15}}`
		req := httptest.NewRequest(http.MethodPost, "/api/triggers", strings.NewReader(body))
		req.Header.Set("X-User-ID", "u1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusCreated, create())
	assert.Equal(t, http.StatusCreated, create())
	assert.Equal(t, http.StatusTooManyRequests, create(), "third request in the window is limited")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health is not rate limited")

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `intent_scheduler_triggers_created_total{kind="interval"} 2`)
}

func TestAppWorkerProtocolIsNotRateLimited(t *testing.T) {
	app, err := New(testConfig(t))
	require.NoError(t, err)
	defer app.Cleanup()
	handler := app.Handler()

	var ids []string
	for _, user := range []string{"u1", "u2", "u3"} {
		body := `{"name":"ping","kind":"interval","schedule":{"interval_minutes":15}}`
		req := httptest.NewRequest(http.MethodPost, "/api/triggers", strings.NewReader(body))
		req.Header.Set("X-User-ID", user)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)

		var created struct {
			ID string `json:"id"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		ids = append(ids, created.ID)
	}

	worker := func(method, path, body string) int {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.RemoteAddr = "192.0.2.1:4000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, worker(http.MethodGet, "/api/triggers/pending", ""))
	for _, id := range ids {
		assert.Equal(t, http.StatusOK, worker(http.MethodPost, "/api/triggers/"+id+"/claim", ""))
		assert.Equal(t, http.StatusOK, worker(http.MethodPost, "/api/triggers/"+id+"/fire", `{"status":"success"}`))
	}

	codes := []int{
		worker(http.MethodGet, "/api/triggers", ""),
		worker(http.MethodGet, "/api/triggers", ""),
		worker(http.MethodGet, "/api/triggers", ""),
	}
	assert.Equal(t, []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests}, codes,
		"user routes from the same address are still limited")
}

func TestAppWithRedisLimiter(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg := testConfig(t)
	cfg.RedisAddress = mr.Addr()
	cfg.MetricsEnabled = false

	app, err := New(cfg)
	require.NoError(t, err)
	defer app.Cleanup()

	require.NotNil(t, app.RedisClient)
	assert.Equal(t, "distributed", app.RateLimiter.Stats()["type"])
	assert.Nil(t, app.Registry)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"ok","checks":{"store":"ok","redis":"ok"}}`, rec.Body.String())

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAppFallsBackWithoutRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	cfg := testConfig(t)
	cfg.RedisAddress = addr

	app, err := New(cfg)
	require.NoError(t, err)
	defer app.Cleanup()

	assert.Nil(t, app.RedisClient)
	assert.Equal(t, "local", app.RateLimiter.Stats()["type"])
}

func TestMigrateCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "migrate.db")
	t.Setenv("DATABASE_TYPE", "sqlite")
	t.Setenv("DATABASE_PATH", dbPath)
	t.Setenv("LOG_LEVEL", "error")

	run := func(args ...string) map[string]interface{} {
		var out bytes.Buffer
		cmd := NewRootCommand()
		cmd.SetOut(&out)
		cmd.SetArgs(args)
		require.NoError(t, cmd.Execute())

		var status map[string]interface{}
		require.NoError(t, json.Unmarshal(out.Bytes(), &status), out.String())
		return status
	}

	status := run("migrate", "--status")
	assert.NotZero(t, status["pending_migrations"])

	status = run("migrate")
	assert.Equal(t, float64(0), status["pending_migrations"])
	assert.Equal(t, status["total_migrations"], status["applied_migrations"])

	_, err := os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestAppStorageStartup(t *testing.T) {
	original := storageRetry
	storageRetry = utils.RetryConfig{MaxAttempts: 2, InitialDelay: time.Millisecond, BackoffFactor: 1}
	t.Cleanup(func() { storageRetry = original })

	t.Run("unknown type fails without retrying", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.DatabaseType = "mysql"

		_, err := New(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not registered")
	})

	t.Run("unreachable database gives up after retries", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "not-a-dir")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

		cfg := testConfig(t)
		cfg.DatabasePath = filepath.Join(blocker, "app.db")

		_, err := New(cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "max retries exceeded")
	})
}
