// Package sqlstore implements storage.Store on database/sql for SQLite
// (mattn/go-sqlite3) and PostgreSQL (pgx stdlib).
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"intent-scheduler/internal/common/logging"
	"intent-scheduler/internal/models"
	"intent-scheduler/internal/storage"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const defaultBusyTimeout = 5 * time.Second

// Store is a storage.Store backed by a *sql.DB.
type Store struct {
	queries
	db     *sql.DB
	logger logging.Logger
}

var _ storage.Store = (*Store)(nil)

// Factory registers sqlstore with a storage.Registry.
type Factory struct{}

func (f *Factory) Create(cfg storage.Config) (storage.Store, error) {
	return Open(context.Background(), cfg)
}

// Open connects to the configured database and applies pending migrations.
func Open(ctx context.Context, cfg storage.Config) (*Store, error) {
	db, driver, err := OpenDB(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	store, err := New(db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}

	if err := NewMigrationManager(db, driver, store.logger).RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// OpenDB opens the configured database without running migrations and
// returns the normalized driver name.
func OpenDB(cfg storage.Config) (*sql.DB, string, error) {
	d, err := newDialect(cfg.Type)
	if err != nil {
		return nil, "", err
	}

	switch d.name {
	case DriverPostgres:
		db, err := sql.Open("pgx", PostgresDSN(cfg.Postgres))
		if err != nil {
			return nil, "", fmt.Errorf("failed to open PostgreSQL database: %w", err)
		}
		return db, d.name, nil
	default:
		db, err := sql.Open("sqlite3", SQLiteDSN(cfg.SQLitePath, cfg.BusyTimeout))
		if err != nil {
			return nil, "", fmt.Errorf("failed to open SQLite database: %w", err)
		}
		return db, d.name, nil
	}
}

// SQLiteDSN builds a go-sqlite3 DSN. Transactions begin IMMEDIATE so that a
// transaction owns the write lock from its first statement.
func SQLiteDSN(path string, busyTimeout time.Duration) string {
	if busyTimeout <= 0 {
		busyTimeout = defaultBusyTimeout
	}
	params := url.Values{}
	params.Set("_txlock", "immediate")
	params.Set("_busy_timeout", fmt.Sprintf("%d", busyTimeout.Milliseconds()))
	params.Set("_foreign_keys", "1")
	params.Set("_journal_mode", "WAL")
	return fmt.Sprintf("file:%s?%s", path, params.Encode())
}

// PostgresDSN builds a pgx connection URL.
func PostgresDSN(cfg storage.PostgresConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	port := cfg.Port
	if port == "" {
		port = "5432"
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%s", cfg.Host, port),
		Path:     "/" + cfg.Database,
		RawQuery: url.Values{"sslmode": []string{sslMode}}.Encode(),
	}
	return u.String()
}

// New wraps an already opened database. driver is "sqlite" or "postgres".
func New(db *sql.DB, driver string) (*Store, error) {
	d, err := newDialect(driver)
	if err != nil {
		return nil, err
	}
	return &Store{
		queries: queries{q: db, d: d},
		db:      db,
		logger:  logging.ForComponent("storage").WithFields(logging.String("driver", d.name)),
	}, nil
}

// Driver returns the normalized driver name.
func (s *Store) Driver() string {
	return s.d.name
}

func (s *Store) GetTrigger(ctx context.Context, id string) (*models.Trigger, error) {
	return s.getTrigger(ctx, id, "")
}

func (s *Store) ListTriggers(ctx context.Context, filters storage.TriggerFilters, limit, offset int) ([]*models.Trigger, int, error) {
	return s.listTriggers(ctx, filters, limit, offset)
}

func (s *Store) DeleteTrigger(ctx context.Context, id string) error {
	return s.deleteTrigger(ctx, id)
}

func (s *Store) ListDueTriggers(ctx context.Context, userID string, now, leaseCutoff time.Time, limit int) ([]*models.Trigger, error) {
	return s.listDueTriggers(ctx, userID, now, leaseCutoff, limit)
}

func (s *Store) LastConditionFire(ctx context.Context, triggerID string) (*time.Time, error) {
	return s.lastConditionFire(ctx, triggerID)
}

func (s *Store) ListExecutions(ctx context.Context, triggerID string, limit, offset int) ([]*models.ExecutionRecord, int, error) {
	return s.listExecutions(ctx, triggerID, limit, offset)
}

// WithTx runs fn in a transaction. fn's error is returned unchanged after
// rollback; begin and commit failures are translated to storage sentinels.
func (s *Store) WithTx(ctx context.Context, fn func(storage.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.d.translate(err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&tx{queries: queries{q: sqlTx, d: s.d}}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.logger.Error("Failed to roll back transaction", rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return s.d.translate(err)
	}
	return nil
}

func (s *Store) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type tx struct {
	queries
}

func (t *tx) LockUser(ctx context.Context, userID string) error {
	if !t.d.isPostgres() {
		return nil
	}
	_, err := t.exec(ctx, `SELECT pg_advisory_xact_lock(hashtext(?))`, userID)
	return err
}

func (t *tx) CountEnabledTriggers(ctx context.Context, userID string) (int, error) {
	return t.countEnabled(ctx, userID)
}

func (t *tx) CreateTrigger(ctx context.Context, trigger *models.Trigger) error {
	return t.createTrigger(ctx, trigger)
}

func (t *tx) LockTrigger(ctx context.Context, id string, mode storage.LockMode) (*models.Trigger, error) {
	trigger, err := t.getTrigger(ctx, id, t.d.lockClause(mode))
	if err == storage.ErrNotFound && mode == storage.LockSkip && t.d.isPostgres() {
		// SKIP LOCKED hides a locked row; tell it apart from a missing one.
		exists, existsErr := t.triggerExists(ctx, id)
		if existsErr != nil {
			return nil, existsErr
		}
		if exists {
			return nil, storage.ErrLocked
		}
	}
	return trigger, err
}

func (t *tx) UpdateTrigger(ctx context.Context, trigger *models.Trigger) error {
	return t.updateTrigger(ctx, trigger)
}

func (t *tx) SetClaim(ctx context.Context, id string, claimedAt time.Time) error {
	return t.setClaim(ctx, id, claimedAt)
}

func (t *tx) InsertExecution(ctx context.Context, rec *models.ExecutionRecord) error {
	return t.insertExecution(ctx, rec)
}

func (t *tx) FindExecutionByIdempotencyKey(ctx context.Context, triggerID, key string) (*models.ExecutionRecord, error) {
	return t.findExecutionByKey(ctx, triggerID, key)
}
