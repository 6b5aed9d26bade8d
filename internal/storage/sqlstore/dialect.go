package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"intent-scheduler/internal/storage"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// PostgreSQL SQLSTATE codes the store reacts to.
const (
	pgUniqueViolation   = "23505"
	pgLockNotAvailable  = "55P03"
	pgSerializationFail = "40001"
)

// dialect papers over the differences between the two supported engines.
// Queries are written with ? placeholders and rebound for PostgreSQL.
type dialect struct {
	name string
}

func newDialect(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite, "sqlite3":
		return dialect{name: DriverSQLite}, nil
	case DriverPostgres, "postgresql", "pgx":
		return dialect{name: DriverPostgres}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database type: %s", driver)
	}
}

func (d dialect) isPostgres() bool {
	return d.name == DriverPostgres
}

// rebind rewrites ? placeholders to $1..$n for PostgreSQL.
func (d dialect) rebind(query string) string {
	if !d.isPostgres() {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// lockClause is appended to a single-row SELECT to take its row lock.
// SQLite has no row locks; transactions there start with BEGIN IMMEDIATE,
// which already holds the database write lock.
func (d dialect) lockClause(mode storage.LockMode) string {
	if !d.isPostgres() {
		return ""
	}
	if mode == storage.LockSkip {
		return " FOR UPDATE SKIP LOCKED"
	}
	return " FOR UPDATE"
}

// translate maps driver errors onto the storage sentinels.
func (d dialect) translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgUniqueViolation:
			return fmt.Errorf("%w: %s", storage.ErrDuplicate, pgErr.ConstraintName)
		case pgLockNotAvailable, pgSerializationFail:
			return fmt.Errorf("%w: %s", storage.ErrLocked, pgErr.Message)
		}
		return err
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch {
		case liteErr.Code == sqlite3.ErrBusy, liteErr.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%w: %s", storage.ErrLocked, liteErr.Error())
		case liteErr.ExtendedCode == sqlite3.ErrConstraintUnique,
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey:
			return fmt.Errorf("%w: %s", storage.ErrDuplicate, liteErr.Error())
		}
	}
	return err
}
