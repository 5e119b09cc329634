package shared

import (
	"database/sql"
	"embed"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// Migration is one schema change, read from a pair of files named
// NNNN_<name>_up.sql and NNNN_<name>_down.sql.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// String renders the migration as "0001 create_documents".
func (m Migration) String() string {
	return fmt.Sprintf("%04d %s", m.Version, m.Name)
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
}

// parseMigrationFile splits "0002_create_refresh_runs_up.sql" into 2, "create_refresh_runs", "up".
func parseMigrationFile(file string) (version int, name, direction string, ok bool) {
	base, found := strings.CutSuffix(file, ".sql")
	if !found {
		return 0, "", "", false
	}
	switch {
	case strings.HasSuffix(base, "_up"):
		base, direction = strings.TrimSuffix(base, "_up"), "up"
	case strings.HasSuffix(base, "_down"):
		base, direction = strings.TrimSuffix(base, "_down"), "down"
	default:
		return 0, "", "", false
	}
	prefix, name, found := strings.Cut(base, "_")
	if !found || name == "" {
		return 0, "", "", false
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, "", "", false
	}
	return version, name, direction, true
}

// loadMigrations reads the embedded scripts, sorted by version. Every version needs both an up
// and a down script.
func loadMigrations() ([]Migration, error) {
	entries, err := migrationFiles.ReadDir("sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, direction, ok := parseMigrationFile(entry.Name())
		if !ok {
			continue
		}

		content, err := migrationFiles.ReadFile(path.Join("sql", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if m.Name != name {
			return nil, fmt.Errorf("migration %04d has conflicting names %q and %q", version, m.Name, name)
		}
		if direction == "up" {
			m.Up = string(content)
		} else {
			m.Down = string(content)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("incomplete migration %s", m)
		}
		migrations = append(migrations, *m)
	}
	slices.SortFunc(migrations, func(a, b Migration) int { return a.Version - b.Version })
	return migrations, nil
}

func createMigrationsTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// AppliedMigrations lists the recorded migrations, oldest first.
func AppliedMigrations(db *sql.DB) ([]AppliedMigration, error) {
	if err := createMigrationsTable(db); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.Query("SELECT version, name, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var a AppliedMigration
		if err := rows.Scan(&a.Version, &a.Name, &a.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}
		applied = append(applied, a)
	}
	return applied, rows.Err()
}

// RunMigrations applies every pending migration.
func RunMigrations(db *sql.DB) error {
	_, err := ApplyMigrations(db, nil)
	return err
}

// ApplyMigrations applies every pending migration in version order, each in its own
// transaction, and returns the ones it applied. A nil logger stays silent.
func ApplyMigrations(db *sql.DB, logger *log.Logger) ([]Migration, error) {
	migrations, err := loadMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to load migrations: %w", err)
	}
	applied, err := AppliedMigrations(db)
	if err != nil {
		return nil, err
	}
	done := make(map[int]bool, len(applied))
	for _, a := range applied {
		done[a.Version] = true
	}

	var ran []Migration
	for _, m := range migrations {
		if done[m.Version] {
			continue
		}
		err := execMigration(db, m.Up, "INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.Version, m.Name)
		if err != nil {
			return ran, fmt.Errorf("failed to apply migration %s: %w", m, err)
		}
		if logger != nil {
			logger.Info("applied migration", "version", m.Version, "name", m.Name)
		}
		ran = append(ran, m)
	}
	return ran, nil
}

// RollbackMigration reverts the most recently applied migration and returns it.
func RollbackMigration(db *sql.DB, logger *log.Logger) (Migration, error) {
	migrations, err := loadMigrations()
	if err != nil {
		return Migration{}, fmt.Errorf("failed to load migrations: %w", err)
	}
	applied, err := AppliedMigrations(db)
	if err != nil {
		return Migration{}, err
	}
	if len(applied) == 0 {
		return Migration{}, fmt.Errorf("%w: no migrations to roll back", ErrInvalidArgument)
	}

	current := applied[len(applied)-1].Version
	i := slices.IndexFunc(migrations, func(m Migration) bool { return m.Version == current })
	if i < 0 {
		return Migration{}, fmt.Errorf("migration %04d is recorded but has no script", current)
	}

	m := migrations[i]
	if err := execMigration(db, m.Down, "DELETE FROM schema_migrations WHERE version = ?", m.Version); err != nil {
		return Migration{}, fmt.Errorf("failed to roll back migration %s: %w", m, err)
	}
	if logger != nil {
		logger.Info("rolled back migration", "version", m.Version, "name", m.Name)
	}
	return m, nil
}

// execMigration runs script and the bookkeeping statement in one transaction. The sqlite driver
// executes every statement of a multi-statement script.
func execMigration(db *sql.DB, script, record string, args ...any) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(script); err != nil {
		return err
	}
	if _, err := tx.Exec(record, args...); err != nil {
		return err
	}
	return tx.Commit()
}
