// Package storage defines the persistence contract of the scheduling engine.
//
// Two tables back the engine: triggers and trigger_executions. All
// read-modify-write sequences that touch scheduling state (claim, fire,
// create under quota, update) run inside WithTx so a trigger row is locked
// for the duration of the change.
//
// Adapters live in subpackages and are selected by name through a Registry:
//
//	reg := storage.NewRegistry()
//	reg.Register("sqlite", &sqlstore.Factory{})
//	reg.Register("postgres", &sqlstore.Factory{})
//
//	store, err := reg.Create(storage.Config{Type: "sqlite", SQLitePath: "intent_scheduler.db"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer store.Close()
package storage

import (
	"context"
	"errors"
	"time"

	"intent-scheduler/internal/models"
)

var (
	// ErrNotFound is returned when a trigger or execution does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrLocked is returned by LockTrigger in LockSkip mode when another
	// transaction holds the row.
	ErrLocked = errors.New("record locked by another transaction")
	// ErrDuplicate is returned when a unique constraint rejects a write.
	ErrDuplicate = errors.New("duplicate record")
)

// LockMode selects how LockTrigger behaves when the row is already locked.
type LockMode int

const (
	// LockWait blocks until the row lock is available.
	LockWait LockMode = iota
	// LockSkip gives up immediately with ErrLocked.
	LockSkip
)

// TriggerFilters narrows ListTriggers. Empty fields match everything.
type TriggerFilters struct {
	UserID  string
	Kind    models.Kind
	Enabled *bool
}

// Store is the engine's persistence layer.
type Store interface {
	GetTrigger(ctx context.Context, id string) (*models.Trigger, error)
	// ListTriggers returns one page of triggers and the total count matching filters.
	ListTriggers(ctx context.Context, filters TriggerFilters, limit, offset int) ([]*models.Trigger, int, error)
	DeleteTrigger(ctx context.Context, id string) error

	// ListDueTriggers returns enabled triggers whose next_check is at or
	// before now and whose claim is absent or older than leaseCutoff, ordered
	// by next_check ascending. An empty userID matches every user.
	ListDueTriggers(ctx context.Context, userID string, now, leaseCutoff time.Time, limit int) ([]*models.Trigger, error)

	// LastConditionFire reads last_condition_fire without taking any lock.
	LastConditionFire(ctx context.Context, triggerID string) (*time.Time, error)

	// ListExecutions returns a trigger's history, newest first, and its total size.
	ListExecutions(ctx context.Context, triggerID string, limit, offset int) ([]*models.ExecutionRecord, int, error)

	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Health(ctx context.Context) error
	Close() error
}

// Tx is the set of writes available inside WithTx.
type Tx interface {
	// LockUser serializes quota-sensitive writes for one user.
	LockUser(ctx context.Context, userID string) error
	CountEnabledTriggers(ctx context.Context, userID string) (int, error)

	CreateTrigger(ctx context.Context, t *models.Trigger) error
	// LockTrigger reads a trigger and holds its row lock until the
	// transaction ends.
	LockTrigger(ctx context.Context, id string, mode LockMode) (*models.Trigger, error)
	UpdateTrigger(ctx context.Context, t *models.Trigger) error
	SetClaim(ctx context.Context, id string, claimedAt time.Time) error

	InsertExecution(ctx context.Context, rec *models.ExecutionRecord) error
	FindExecutionByIdempotencyKey(ctx context.Context, triggerID, key string) (*models.ExecutionRecord, error)
}

// Config selects and parameterizes a storage adapter.
type Config struct {
	Type string

	SQLitePath string
	// BusyTimeout bounds how long SQLite waits for the database write lock.
	BusyTimeout time.Duration

	Postgres PostgresConfig

	MaxOpenConns int
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
	SSLMode  string
}

// Factory builds a Store from a Config.
type Factory interface {
	Create(cfg Config) (Store, error)
}
