package utils

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"
)

// RetryConfig controls RetryWithBackoff.
type RetryConfig struct {
	// MaxAttempts includes the initial attempt.
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	// JitterFactor adds up to this fraction of the delay (0.1 = 10%).
	JitterFactor float64
	// RetryableErrors reports whether err is worth another attempt.
	// A nil func retries every error.
	RetryableErrors func(error) bool
}

// DefaultRetryConfig retries three times starting at one second, doubling up
// to thirty seconds with 10% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  1 * time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
		RetryableErrors: func(err error) bool {
			return true
		},
	}
}

// RetryWithBackoff calls fn until it succeeds, returns a non-retryable error,
// runs out of attempts or ctx is done. Exhausted attempts wrap the last error
// in "max retries exceeded"; cancellation wraps ctx.Err() in "retry cancelled".
func RetryWithBackoff(ctx context.Context, config RetryConfig, fn func() error) error {
	var lastErr error
	delay := config.InitialDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if config.RetryableErrors != nil && !config.RetryableErrors(err) {
			return err
		}
		if attempt == config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * config.BackoffFactor)
		if config.MaxDelay > 0 && delay > config.MaxDelay {
			delay = config.MaxDelay
		}
		if config.JitterFactor > 0 {
			jitter := time.Duration(float64(delay) * config.JitterFactor)
			delay += time.Duration(randomInt64n(int64(jitter)))
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// Retry is RetryWithBackoff with a fixed delay and no jitter.
func Retry(attempts int, delay time.Duration, fn func() error) error {
	config := RetryConfig{
		MaxAttempts:   attempts,
		InitialDelay:  delay,
		MaxDelay:      delay,
		BackoffFactor: 1.0,
	}
	return RetryWithBackoff(context.Background(), config, fn)
}

// randomInt64n returns a random value in [0, n), or 0 when n <= 0.
func randomInt64n(n int64) int64 {
	if n <= 0 {
		return 0
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return time.Now().UnixNano() % n
	}
	return int64(binary.BigEndian.Uint64(buf[:])>>1) % n
}
