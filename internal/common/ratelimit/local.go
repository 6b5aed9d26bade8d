package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// localLimiter keeps one token bucket per key.
type localLimiter struct {
	mu       sync.Mutex
	config   Config
	limit    rate.Limit
	limiters map[string]*limiterEntry

	lastCleanup time.Time
	now         func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewLocalLimiter creates an in-memory limiter refilling Requests tokens per
// Window with a burst of Requests.
func NewLocalLimiter(config Config) (Limiter, error) {
	return newLocalLimiter(config, time.Now)
}

func newLocalLimiter(config Config, now func() time.Time) (*localLimiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	rl := &localLimiter{
		config:      config,
		limiters:    make(map[string]*limiterEntry),
		lastCleanup: now(),
		now:         now,
	}
	if config.Enabled {
		rl.limit = rate.Limit(float64(config.Requests) / config.Window.Seconds())
	}
	return rl, nil
}

// TryAcquireForKey attempts to acquire a token for a specific key
func (rl *localLimiter) TryAcquireForKey(_ context.Context, key string) bool {
	if !rl.config.Enabled {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.limiterFor(key).AllowN(rl.now(), 1)
}

// limiterFor gets or creates the bucket for key. Callers hold rl.mu.
func (rl *localLimiter) limiterFor(key string) *rate.Limiter {
	now := rl.now()
	if now.Sub(rl.lastCleanup) > rl.config.CleanupPeriod {
		rl.cleanup(now)
	}

	entry, exists := rl.limiters[key]
	if !exists {
		entry = &limiterEntry{limiter: rate.NewLimiter(rl.limit, rl.config.Requests)}
		rl.limiters[key] = entry

		if len(rl.limiters) > rl.config.MaxKeys {
			rl.cleanup(now)
		}
	}
	entry.lastUsed = now

	return entry.limiter
}

// cleanup drops buckets idle for longer than the cleanup period. An idle
// bucket has refilled completely, so dropping it loses nothing.
func (rl *localLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-rl.config.CleanupPeriod)

	for key, entry := range rl.limiters {
		if entry.lastUsed.Before(cutoff) {
			delete(rl.limiters, key)
		}
	}

	rl.lastCleanup = now
}

func (rl *localLimiter) Stats() map[string]interface{} {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	return map[string]interface{}{
		"type":        "local",
		"enabled":     rl.config.Enabled,
		"requests":    rl.config.Requests,
		"window":      rl.config.Window.String(),
		"active_keys": len(rl.limiters),
		"max_keys":    rl.config.MaxKeys,
	}
}

// Health always succeeds for the in-memory backend.
func (rl *localLimiter) Health(context.Context) error {
	return nil
}

var _ Limiter = (*localLimiter)(nil)
