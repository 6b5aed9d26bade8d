package app

import (
	"intent-scheduler/internal/common/logging"
	"intent-scheduler/internal/common/ratelimit"
	"intent-scheduler/internal/config"
	"intent-scheduler/internal/metrics"
	"intent-scheduler/internal/redis"
	"intent-scheduler/internal/storage"
	"intent-scheduler/internal/triggers"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App holds all the application dependencies
type App struct {
	Config      *config.Config
	Storage     storage.Store
	Service     *triggers.Service
	RedisClient *redis.Client
	RateLimiter ratelimit.Limiter
	Registry    *prometheus.Registry
	Metrics     metrics.Recorder
	Logger      logging.Logger
}

// New creates a new application instance with all dependencies
func New(cfg *config.Config) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logging.ForComponent("app"),
	}

	if err := app.initializeStorage(); err != nil {
		return nil, err
	}

	if err := app.initializeMetrics(); err != nil {
		app.Cleanup()
		return nil, err
	}

	if err := app.initializeRedis(); err != nil {
		// Redis only backs rate limiting; the local limiter takes over.
		app.Logger.Warn("Redis initialization failed, continuing without Redis", logging.Err(err))
	}

	if err := app.initializeRateLimiter(); err != nil {
		app.Cleanup()
		return nil, err
	}

	app.Service = triggers.NewService(app.Storage, triggers.Options{
		LeaseDuration: config.Duration(cfg.LeaseDuration, triggers.DefaultLeaseDuration),
		PendingLimit:  config.Int(cfg.PendingLimit, triggers.DefaultPendingLimit),
		MaxEnabled:    config.Int(cfg.MaxEnabledTriggers, 0),
		Metrics:       app.Metrics,
		Logger:        logging.ForComponent("triggers"),
	})

	return app, nil
}

func (app *App) initializeMetrics() error {
	if !app.Config.MetricsEnabled {
		app.Metrics = metrics.Nop()
		return nil
	}

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := metrics.NewPrometheusRecorder(metrics.DefaultNamespace, app.Registry)
	if err != nil {
		return err
	}
	app.Metrics = recorder
	return nil
}

// Cleanup releases all resources
func (app *App) Cleanup() {
	if app.Storage != nil {
		if err := app.Storage.Close(); err != nil {
			app.Logger.Warn("Error closing storage", logging.Err(err))
		}
	}
	if app.RedisClient != nil {
		if err := app.RedisClient.Close(); err != nil {
			app.Logger.Warn("Error closing Redis client", logging.Err(err))
		}
	}
}
