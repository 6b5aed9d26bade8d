package app

import (
	"time"

	"intent-scheduler/internal/common/logging"
	"intent-scheduler/internal/common/ratelimit"
	"intent-scheduler/internal/config"
)

// initializeRateLimiter builds the per-caller API limiter: shared through
// Redis when it is connected, per instance otherwise. Nothing is built when
// rate limiting is disabled.
func (app *App) initializeRateLimiter() error {
	if !app.Config.RateLimitEnabled {
		app.Logger.Info("Rate Limiting: Disabled")
		return nil
	}

	rateLimitConfig := ratelimit.Config{
		Enabled:  true,
		Requests: config.Int(app.Config.RateLimitDefault, 100),
		Window:   config.Duration(app.Config.RateLimitWindow, time.Minute),
		Type:     ratelimit.BackendLocal,
	}

	var (
		limiter ratelimit.Limiter
		err     error
	)
	if app.RedisClient != nil {
		rateLimitConfig.Type = ratelimit.BackendDistributed
		rateLimitConfig.KeyPrefix = "intent-scheduler:ratelimit:"
		limiter, err = ratelimit.New(rateLimitConfig, logging.ForComponent("ratelimit"), app.RedisClient)
	} else {
		limiter, err = ratelimit.New(rateLimitConfig, logging.ForComponent("ratelimit"))
	}
	if err != nil {
		return err
	}

	app.RateLimiter = limiter
	app.Logger.Info("Rate Limiting: Enabled",
		logging.String("backend", string(rateLimitConfig.Type)),
		logging.Int("limit", rateLimitConfig.Requests),
		logging.Duration("window", rateLimitConfig.Window),
	)
	return nil
}
