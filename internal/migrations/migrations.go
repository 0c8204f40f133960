package migrations

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: 1,
		Name:    "Add project indices",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_runs_project ON bench_runs(project_name);
			CREATE INDEX IF NOT EXISTS idx_history_project ON history(project_name);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_runs_project;
			DROP INDEX IF EXISTS idx_history_project;
		`,
	},
	{
		Version: 2,
		Name:    "Add composite index for per-run metric timelines",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_metrics_run_elapsed ON bench_metrics(run_id, elapsed_ms);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_metrics_run_elapsed;
		`,
	},
}

// InitSchema creates the base tables
func InitSchema(db *sql.DB) error {
	schema := `
	-- Batch runs
	CREATE TABLE IF NOT EXISTS bench_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		project_name TEXT,
		template_name TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		completed_at DATETIME,
		status TEXT NOT NULL,
		concurrency INTEGER NOT NULL DEFAULT 0,
		total_requests INTEGER NOT NULL DEFAULT 0,
		total_requests_sent INTEGER DEFAULT 0,
		total_requests_completed INTEGER DEFAULT 0,
		success_count INTEGER DEFAULT 0,
		failure_count INTEGER DEFAULT 0,
		bytes_sent INTEGER DEFAULT 0,
		bytes_received INTEGER DEFAULT 0,
		avg_duration_ms REAL DEFAULT 0,
		min_duration_ms REAL DEFAULT 0,
		max_duration_ms REAL DEFAULT 0,
		p50_duration_ms REAL DEFAULT 0,
		p95_duration_ms REAL DEFAULT 0,
		p99_duration_ms REAL DEFAULT 0,
		qps REAL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started_at ON bench_runs(started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_runs_status ON bench_runs(status);

	CREATE TABLE IF NOT EXISTS bench_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		seq INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		status_code INTEGER NOT NULL,
		duration_ms REAL NOT NULL,
		request_size INTEGER DEFAULT 0,
		response_size INTEGER DEFAULT 0,
		error_message TEXT,
		diagnostics TEXT,
		FOREIGN KEY (run_id) REFERENCES bench_runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_metrics_run_id ON bench_metrics(run_id);

	-- Single request history
	CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		project_name TEXT,
		template_name TEXT NOT NULL,
		method TEXT NOT NULL,
		url TEXT NOT NULL,
		headers TEXT NOT NULL,
		body TEXT,
		response_status INTEGER NOT NULL,
		response_status_text TEXT NOT NULL,
		response_headers TEXT NOT NULL,
		response_body TEXT NOT NULL,
		duration_ms REAL NOT NULL,
		request_size INTEGER,
		response_size INTEGER,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_history_timestamp ON history(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_history_template ON history(template_name);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Run executes all pending migrations on the database
func Run(db *sql.DB) error {
	// Initialize schema first to ensure all tables exist
	if err := InitSchema(db); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := GetCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for _, migration := range AllMigrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", migration.Version, err)
		}
		if _, err := tx.Exec(migration.Up); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Name, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			migration.Version,
			migration.Name,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// GetCurrentVersion returns the current database schema version
func GetCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`
		SELECT COALESCE(MAX(version), 0)
		FROM schema_migrations
	`).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return version, nil
}

// Open opens (creating if needed) the SQLite database at path and migrates it.
// ":memory:" is accepted for tests.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// one connection: SQLite has a single writer and :memory: is per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}
