package ratelimit

import (
	"context"
	"fmt"
	"time"

	"intent-scheduler/internal/circuitbreaker"
	"intent-scheduler/internal/common/logging"
)

// distributedLimiter implements Redis-backed distributed rate limiting
type distributedLimiter struct {
	config      Config
	redisClient RedisInterface
	breaker     *circuitbreaker.Breaker
	logger      logging.Logger
}

// NewDistributedLimiter creates a limiter whose window is shared through Redis.
func NewDistributedLimiter(config Config, redisClient RedisInterface, logger logging.Logger) (Limiter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if redisClient == nil {
		return nil, fmt.Errorf("redis client is required for distributed rate limiter")
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &distributedLimiter{
		config:      config,
		redisClient: redisClient,
		breaker:     circuitbreaker.New("ratelimit-redis", circuitbreaker.DefaultConfig(), logger),
		logger:      logger,
	}, nil
}

// TryAcquireForKey checks the Redis sliding window for key. Redis errors let
// the request through, and after repeated errors the breaker stops calling
// Redis until it recovers.
func (rl *distributedLimiter) TryAcquireForKey(ctx context.Context, key string) bool {
	if !rl.config.Enabled {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	var allowed bool
	err := rl.breaker.Execute(func() error {
		var err error
		allowed, _, err = rl.redisClient.CheckRateLimit(ctx, rl.config.KeyPrefix+key, rl.config.Requests, rl.config.Window)
		return err
	})
	if err != nil {
		rl.logger.Warn("Rate limit check failed, allowing request",
			logging.String("key", key),
			logging.Err(err),
		)
		return true
	}

	return allowed
}

func (rl *distributedLimiter) Stats() map[string]interface{} {
	return map[string]interface{}{
		"type":       "distributed",
		"enabled":    rl.config.Enabled,
		"requests":   rl.config.Requests,
		"window":     rl.config.Window.String(),
		"backend":    "redis",
		"key_prefix": rl.config.KeyPrefix,
		"breaker":    rl.breaker.State(),
	}
}

func (rl *distributedLimiter) Health(ctx context.Context) error {
	return rl.redisClient.Health(ctx)
}

var _ Limiter = (*distributedLimiter)(nil)
