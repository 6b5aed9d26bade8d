package sqlstore

import (
	"context"
	"crypto/md5"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"intent-scheduler/internal/common/logging"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Compile regex once at package level for performance
var migrationVersionRegex = regexp.MustCompile(`^(\d+)_.*\.sql$`)

// Migration represents a single database migration
type Migration struct {
	Version  string
	Filename string
	Content  string
	Checksum string
}

// MigrationStatus summarizes applied and pending migrations.
type MigrationStatus struct {
	Total           int      `json:"total_migrations"`
	Applied         int      `json:"applied_migrations"`
	Pending         int      `json:"pending_migrations"`
	PendingVersions []string `json:"pending_versions,omitempty"`
}

// MigrationManager handles database schema migrations
type MigrationManager struct {
	db      *sql.DB
	logger  logging.Logger
	files   fs.FS
	dialect dialect
}

// NewMigrationManager creates a migration manager over the embedded
// migration files for driver.
func NewMigrationManager(db *sql.DB, driver string, logger logging.Logger) *MigrationManager {
	d, err := newDialect(driver)
	if err != nil {
		d = dialect{name: DriverSQLite}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	sub, _ := fs.Sub(embeddedMigrations, "migrations")
	return &MigrationManager{
		db:      db,
		logger:  logger,
		files:   sub,
		dialect: d,
	}
}

// RunMigrations runs all pending migrations
func (m *MigrationManager) RunMigrations(ctx context.Context) error {
	m.logger.Info("Starting database migrations", logging.String("db_type", m.dialect.name))

	if err := m.ensureMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations, err := m.loadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migration files: %w", err)
	}

	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}
	m.verifyChecksums(migrations, applied)

	pending := m.findPendingMigrations(migrations, applied)
	if len(pending) == 0 {
		m.logger.Info("No pending migrations found - database is up to date")
		return nil
	}

	m.logger.Info("Found pending migrations",
		logging.Int("count", len(pending)),
		logging.Field{Key: "versions", Value: versionList(pending)},
	)

	for _, migration := range pending {
		if err := m.applyMigration(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
	}

	m.logger.Info("All migrations completed successfully", logging.Int("applied_count", len(pending)))
	return nil
}

// Status reports how many migrations are applied and pending.
func (m *MigrationManager) Status(ctx context.Context) (*MigrationStatus, error) {
	if err := m.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}
	migrations, err := m.loadMigrations()
	if err != nil {
		return nil, err
	}
	applied, err := m.getAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	pending := m.findPendingMigrations(migrations, applied)
	return &MigrationStatus{
		Total:           len(migrations),
		Applied:         len(migrations) - len(pending),
		Pending:         len(pending),
		PendingVersions: versionList(pending),
	}, nil
}

func (m *MigrationManager) ensureMigrationsTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL,
			checksum TEXT
		)`)
	return err
}

// loadMigrations reads the migration files compatible with the dialect,
// ordered by version.
func (m *MigrationManager) loadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.files, ".")
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" || !m.isFileCompatible(name) {
			continue
		}

		version := extractVersion(name)
		if version == "" {
			m.logger.Warn("Skipping file with invalid version format",
				logging.String("filename", name),
				logging.String("expected_format", "###_name.sql"),
			)
			continue
		}

		content, err := fs.ReadFile(m.files, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", name, err)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Filename: name,
			Content:  string(content),
			Checksum: fmt.Sprintf("%x", md5.Sum(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return compareVersions(migrations[i].Version, migrations[j].Version) < 0
	})
	return migrations, nil
}

func extractVersion(filename string) string {
	matches := migrationVersionRegex.FindStringSubmatch(filename)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}

// isFileCompatible picks "_postgres.sql" files for PostgreSQL and every
// other file for SQLite.
func (m *MigrationManager) isFileCompatible(filename string) bool {
	isPostgresFile := strings.HasSuffix(filename, "_postgres.sql")
	if m.dialect.isPostgres() {
		return isPostgresFile
	}
	return !isPostgresFile
}

func compareVersions(v1, v2 string) int {
	n1, _ := strconv.Atoi(v1)
	n2, _ := strconv.Atoi(v2)

	if n1 < n2 {
		return -1
	} else if n1 > n2 {
		return 1
	}
	return 0
}

// getAppliedMigrations returns the checksum of every applied version.
func (m *MigrationManager) getAppliedMigrations(ctx context.Context) (map[string]string, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version, checksum FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var version string
		var checksum sql.NullString
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, err
		}
		applied[version] = checksum.String
	}
	return applied, rows.Err()
}

func (m *MigrationManager) verifyChecksums(migrations []Migration, applied map[string]string) {
	for _, migration := range migrations {
		checksum, ok := applied[migration.Version]
		if ok && checksum != "" && checksum != migration.Checksum {
			m.logger.Warn("Applied migration differs from its file",
				logging.String("version", migration.Version),
				logging.String("filename", migration.Filename),
			)
		}
	}
}

func (m *MigrationManager) findPendingMigrations(all []Migration, applied map[string]string) []Migration {
	var pending []Migration
	for _, migration := range all {
		if _, ok := applied[migration.Version]; !ok {
			pending = append(pending, migration)
		}
	}
	return pending
}

func versionList(migrations []Migration) []string {
	versions := make([]string, len(migrations))
	for i, migration := range migrations {
		versions[i] = migration.Version
	}
	return versions
}

// applyMigration applies a single migration within a transaction
func (m *MigrationManager) applyMigration(ctx context.Context, migration Migration) error {
	m.logger.Info("Applying migration",
		logging.String("version", migration.Version),
		logging.String("filename", migration.Filename),
	)

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.Content); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		m.dialect.rebind("INSERT INTO schema_migrations (version, filename, applied_at, checksum) VALUES (?, ?, ?, ?)"),
		migration.Version,
		migration.Filename,
		time.Now().UTC(),
		migration.Checksum,
	)
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	m.logger.Info("Migration applied successfully", logging.String("version", migration.Version))
	return nil
}
