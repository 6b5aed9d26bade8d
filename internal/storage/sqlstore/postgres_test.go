package sqlstore

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"intent-scheduler/internal/models"
	"intent-scheduler/internal/storage"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store, err := New(db, "postgres")
	require.NoError(t, err)
	return store, mock
}

var triggerColumnNames = []string{
	"id", "user_id", "name", "description", "kind", "schedule_config", "condition_config",
	"cooldown_hours", "fire_mode", "action", "next_check", "last_checked", "last_executed",
	"last_condition_fire", "execution_count", "enabled", "disabled_reason", "claimed_at",
	"expires_at", "max_executions", "created_at", "updated_at",
}

func TestPostgres_LockTriggerForUpdate(t *testing.T) {
	store, mock := newPostgresMock(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 7, 18, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM triggers WHERE id = $1 FOR UPDATE")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows(triggerColumnNames).AddRow(
			"t1", "u1", "dip", "", "price",
			[]byte(`{"check_interval_minutes":5}`), []byte(`{"ticker":"NVDA","operator":"<","value":130}`),
			int64(24), "recurring", nil, now, nil, nil,
			nil, int64(2), true, nil, nil,
			nil, nil, now, now,
		))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE triggers SET claimed_at = $1 WHERE id = $2")).
		WithArgs(now, "t1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.WithTx(ctx, func(tx storage.Tx) error {
		tr, err := tx.LockTrigger(ctx, "t1", storage.LockWait)
		if err != nil {
			return err
		}
		assert.Equal(t, models.PriceCondition{Ticker: "NVDA", Operator: "<", Value: 130}, tr.Condition)
		assert.Equal(t, 2, tr.ExecutionCount)
		return tx.SetClaim(ctx, "t1", now)
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SkipLockedReportsLocked(t *testing.T) {
	store, mock := newPostgresMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM triggers WHERE id = $1 FOR UPDATE SKIP LOCKED")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows(triggerColumnNames))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM triggers WHERE id = $1")).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	mock.ExpectRollback()

	err := store.WithTx(ctx, func(tx storage.Tx) error {
		_, err := tx.LockTrigger(ctx, "t1", storage.LockSkip)
		return err
	})
	assert.ErrorIs(t, err, storage.ErrLocked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SkipLockedMissingRow(t *testing.T) {
	store, mock := newPostgresMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE SKIP LOCKED")).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows(triggerColumnNames))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM triggers WHERE id = $1")).
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))
	mock.ExpectRollback()

	err := store.WithTx(ctx, func(tx storage.Tx) error {
		_, err := tx.LockTrigger(ctx, "gone", storage.LockSkip)
		return err
	})
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LockUserTakesAdvisoryLock(t *testing.T) {
	store, mock := newPostgresMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_xact_lock(hashtext($1))")).
		WithArgs("u1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM triggers WHERE user_id = $1 AND enabled = $2")).
		WithArgs("u1", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(25))
	mock.ExpectCommit()

	var count int
	err := store.WithTx(ctx, func(tx storage.Tx) error {
		if err := tx.LockUser(ctx, "u1"); err != nil {
			return err
		}
		var err error
		count, err = tx.CountEnabledTriggers(ctx, "u1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 25, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UniqueViolationIsDuplicate(t *testing.T) {
	store, mock := newPostgresMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO trigger_executions")).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "idx_trigger_executions_idempotency"})
	mock.ExpectRollback()

	err := store.WithTx(ctx, func(tx storage.Tx) error {
		return tx.InsertExecution(ctx, &models.ExecutionRecord{
			ID: "e1", TriggerID: "t1", UserID: "u1", ExecutedAt: time.Now(),
			Kind: models.KindPrice, Status: models.StatusSuccess, IdempotencyKey: "k",
		})
	})
	assert.ErrorIs(t, err, storage.ErrDuplicate)
	assert.Contains(t, err.Error(), "idx_trigger_executions_idempotency")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_DueQueryIsRebound(t *testing.T) {
	store, mock := newPostgresMock(t)
	now := time.Date(2026, 3, 7, 18, 0, 0, 0, time.UTC)
	cutoff := now.Add(-5 * time.Minute)

	mock.ExpectQuery(`next_check <= \$3\s+AND \(claimed_at IS NULL OR claimed_at <= \$4\)\s+ORDER BY next_check ASC, id ASC\s+LIMIT \$5`).
		WithArgs("u1", true, now, cutoff, 50).
		WillReturnRows(sqlmock.NewRows(triggerColumnNames))

	got, err := store.ListDueTriggers(context.Background(), "u1", now, cutoff, 50)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDialect_Rebind(t *testing.T) {
	pg := dialect{name: DriverPostgres}
	lite := dialect{name: DriverSQLite}

	q := "SELECT * FROM triggers WHERE user_id = ? AND enabled = ? LIMIT ?"
	assert.Equal(t, "SELECT * FROM triggers WHERE user_id = $1 AND enabled = $2 LIMIT $3", pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))

	assert.Equal(t, " FOR UPDATE", pg.lockClause(storage.LockWait))
	assert.Equal(t, " FOR UPDATE SKIP LOCKED", pg.lockClause(storage.LockSkip))
	assert.Empty(t, lite.lockClause(storage.LockSkip))
}

func TestDialect_Translate(t *testing.T) {
	d := dialect{name: DriverSQLite}

	assert.Nil(t, d.translate(nil))
	plain := errors.New("x")
	assert.Same(t, plain, d.translate(plain), "unknown errors pass through")
	assert.ErrorIs(t, d.translate(sqlite3.Error{Code: sqlite3.ErrBusy}), storage.ErrLocked)
	assert.ErrorIs(t, d.translate(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}), storage.ErrDuplicate)
	assert.ErrorIs(t, d.translate(&pgconn.PgError{Code: "55P03"}), storage.ErrLocked)
}

func TestNewDialect(t *testing.T) {
	for _, name := range []string{"sqlite", "sqlite3"} {
		d, err := newDialect(name)
		require.NoError(t, err)
		assert.Equal(t, DriverSQLite, d.name)
	}
	for _, name := range []string{"postgres", "postgresql", "pgx"} {
		d, err := newDialect(name)
		require.NoError(t, err)
		assert.Equal(t, DriverPostgres, d.name)
	}
	_, err := newDialect("mysql")
	assert.Error(t, err)
}

func TestDSNs(t *testing.T) {
	dsn := SQLiteDSN("/tmp/x.db", 0)
	assert.Contains(t, dsn, "file:/tmp/x.db?")
	assert.Contains(t, dsn, "_txlock=immediate")
	assert.Contains(t, dsn, "_busy_timeout=5000")
	assert.Contains(t, dsn, "_foreign_keys=1")

	pg := PostgresDSN(storage.PostgresConfig{Host: "db", User: "app", Password: "p@ss", Database: "scheduler"})
	assert.Equal(t, "postgres://app:p%40ss@db:5432/scheduler?sslmode=disable", pg)
}
