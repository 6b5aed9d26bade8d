package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"intent-scheduler/internal/common/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerLifecycle(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	srv := New(handler, "0", logging.NewNopLogger())
	errCh, err := srv.Start()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	_, open := <-errCh
	assert.False(t, open, "a graceful shutdown reports no error")
}

func TestServerBindError(t *testing.T) {
	srv := New(http.NotFoundHandler(), "not-a-port", logging.NewNopLogger())
	_, err := srv.Start()
	assert.Error(t, err)
}
