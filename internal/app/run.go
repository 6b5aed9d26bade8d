package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	apperrors "intent-scheduler/internal/common/errors"
	"intent-scheduler/internal/common/logging"
	"intent-scheduler/internal/config"
	"intent-scheduler/internal/storage/sqlstore"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Run is the main entry point for the application
func Run() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the CLI. With no subcommand it serves.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "intent-scheduler",
		Short:         "Durable trigger scheduling and lease coordination for proactive messaging",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			return logging.InitGlobalLogger()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.MustSync()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	})
	root.AddCommand(newMigrateCommand())
	return root
}

func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logging.Error("Configuration validation failed", err)
		return nil, apperrors.ConfigError(err.Error())
	}
	return cfg, nil
}

func serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logging.Info("Starting intent scheduler")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := New(cfg)
	if err != nil {
		logging.Error("Failed to initialize application", err)
		return err
	}
	defer app.Cleanup()

	srv := app.NewServer()
	serveErr, err := srv.Start()
	if err != nil {
		logging.Error("Server failed to start", err)
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-ctx.Done():
		logging.Info("Shutting down server...")
	case err := <-serveErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error("Server forced to shutdown", err)
		return err
	}

	logging.Info("Server exited")
	return nil
}

func newMigrateCommand() *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			db, driver, err := sqlstore.OpenDB(storageConfig(cfg))
			if err != nil {
				return err
			}
			defer db.Close()

			manager := sqlstore.NewMigrationManager(db, driver, logging.ForComponent("migrations"))
			if !statusOnly {
				if err := manager.RunMigrations(cmd.Context()); err != nil {
					return err
				}
			}

			status, err := manager.Status(cmd.Context())
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "Report migration status without applying anything")
	return cmd
}
