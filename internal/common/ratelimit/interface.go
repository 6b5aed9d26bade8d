package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether one more request for key may proceed.
type Limiter interface {
	TryAcquireForKey(ctx context.Context, key string) bool
	Stats() map[string]interface{}
	Health(ctx context.Context) error
}

// RedisInterface defines the minimal Redis interface needed for rate limiting
type RedisInterface interface {
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, int, error)
	Health(ctx context.Context) error
}
