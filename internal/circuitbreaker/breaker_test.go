package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	apperrors "intent-scheduler/internal/common/errors"
	"intent-scheduler/internal/common/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{MaxFailures: 2, Timeout: 50 * time.Millisecond, MaxConcurrentRequests: 1}
}

func TestBreaker(t *testing.T) {
	logger := logging.NewNopLogger()

	t.Run("passes calls through while closed", func(t *testing.T) {
		cb := New("closed", testConfig(), logger)

		assert.NoError(t, cb.Execute(func() error { return nil }))
		boom := errors.New("boom")
		assert.Equal(t, boom, cb.Execute(func() error { return boom }))
		assert.Equal(t, "closed", cb.State())
	})

	t.Run("opens after consecutive failures", func(t *testing.T) {
		cb := New("opens", testConfig(), logger)

		for i := 0; i < 2; i++ {
			_ = cb.Execute(func() error { return errors.New("down") })
		}
		assert.Equal(t, "open", cb.State())

		called := false
		err := cb.Execute(func() error {
			called = true
			return nil
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrOpen)
		assert.Contains(t, err.Error(), "opens")
		assert.False(t, called)
	})

	t.Run("recovers after timeout", func(t *testing.T) {
		cb := New("recovers", testConfig(), logger)
		for i := 0; i < 2; i++ {
			_ = cb.Execute(func() error { return errors.New("down") })
		}

		time.Sleep(80 * time.Millisecond)
		assert.Equal(t, "half-open", cb.State())
		assert.NoError(t, cb.Execute(func() error { return nil }))
		assert.Equal(t, "closed", cb.State())
	})

	t.Run("client errors do not trip", func(t *testing.T) {
		cb := New("client", testConfig(), logger)
		for i := 0; i < 5; i++ {
			_ = cb.Execute(func() error { return apperrors.NotFoundError("trigger") })
		}
		assert.Equal(t, "closed", cb.State())
	})
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
	assert.Error(t, Config{Timeout: time.Second, MaxConcurrentRequests: 1}.Validate())
	assert.Error(t, Config{MaxFailures: 1, MaxConcurrentRequests: 1}.Validate())
	assert.Error(t, Config{MaxFailures: 1, Timeout: time.Second}.Validate())

	cb := New("invalid", Config{}, logging.NewNopLogger())
	assert.Equal(t, "invalid", cb.Name())
	assert.Equal(t, "closed", cb.State())
}
