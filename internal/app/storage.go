package app

import (
	"context"
	"fmt"

	"intent-scheduler/internal/common/logging"
	"intent-scheduler/internal/common/utils"
	"intent-scheduler/internal/config"
	"intent-scheduler/internal/storage"
	"intent-scheduler/internal/storage/sqlstore"
)

// newRegistry registers every storage backend this binary supports.
func newRegistry() *storage.Registry {
	registry := storage.NewRegistry()
	factory := &sqlstore.Factory{}
	registry.Register("sqlite", factory)
	registry.Register("postgres", factory)
	registry.Register("postgresql", factory)
	return registry
}

// storageConfig translates the environment configuration for the store.
func storageConfig(cfg *config.Config) storage.Config {
	return storage.Config{
		Type:       cfg.DatabaseType,
		SQLitePath: cfg.DatabasePath,
		Postgres: storage.PostgresConfig{
			Host:     cfg.PostgresHost,
			Port:     cfg.PostgresPort,
			Database: cfg.PostgresDB,
			User:     cfg.PostgresUser,
			Password: cfg.PostgresPassword,
			SSLMode:  cfg.PostgresSSLMode,
		},
		MaxOpenConns: config.Int(cfg.DBMaxOpenConns, 10),
	}
}

// storageRetry covers a database that is still starting when the service boots.
var storageRetry = utils.DefaultRetryConfig()

// initializeStorage opens the store; opening applies pending migrations.
func (app *App) initializeStorage() error {
	registry := newRegistry()
	if !registry.IsRegistered(app.Config.DatabaseType) {
		return fmt.Errorf("failed to initialize storage: type %q not registered (available: %v)",
			app.Config.DatabaseType, registry.GetAvailableTypes())
	}

	var store storage.Store
	attempt := 0
	err := utils.RetryWithBackoff(context.Background(), storageRetry, func() error {
		attempt++
		var err error
		store, err = registry.Create(storageConfig(app.Config))
		if err != nil {
			app.Logger.Warn("Storage connection attempt failed",
				logging.Int("attempt", attempt),
				logging.Err(err),
			)
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to initialize %s storage: %w", app.Config.DatabaseType, err)
	}

	app.Storage = store
	app.Logger.Info("Storage initialized", logging.String("type", app.Config.DatabaseType))
	return nil
}
