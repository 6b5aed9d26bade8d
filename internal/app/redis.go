package app

import (
	"fmt"

	apperrors "intent-scheduler/internal/common/errors"
	"intent-scheduler/internal/common/logging"
	"intent-scheduler/internal/config"
	"intent-scheduler/internal/redis"
)

func (app *App) initializeRedis() error {
	if app.Config.RedisAddress == "" {
		app.Logger.Info("Redis: Not configured (rate limiting stays per instance)")
		return nil
	}

	redisClient, err := redis.NewClient(&redis.Config{
		Address:  app.Config.RedisAddress,
		Password: app.Config.RedisPassword,
		DB:       config.Int(app.Config.RedisDB, 0),
		PoolSize: config.Int(app.Config.RedisPoolSize, 10),
	})
	if err != nil {
		return apperrors.ConnectionError(fmt.Sprintf("redis unreachable at %s", app.Config.RedisAddress), err)
	}

	app.RedisClient = redisClient
	app.Logger.Info("Redis: Connected", logging.String("address", app.Config.RedisAddress))
	return nil
}
