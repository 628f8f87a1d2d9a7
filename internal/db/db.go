// Package db provides the embedded SQLite store for inkstone.
//
// The database holds one user's novel projects: project, volume, chapter and
// character rows plus deletion tombstones and device-local settings. It is
// opened in WAL mode for crash consistency. A single local writer is
// assumed; all operations are serialized calls against one connection pool.
//
// Array- and object-valued fields (genres, key points, appearances,
// relationships and so on) are stored as JSON text columns. Serialization is
// confined to this package: callers only ever see typed values, and
// missing or malformed JSON decodes to an empty collection rather than an
// error.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// DB wraps the SQLite database connection for the local store.
type DB struct {
	conn *sql.DB
	path string

	// now is the clock used for timestamps and lock expiry. Tests
	// override it to advance time without sleeping.
	now func() time.Time
}

// Open creates a new database connection at the specified path.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If the database doesn't exist, it is created; call InitSchema afterwards
// to create tables and apply migrations.
//
// The caller MUST call Close() when done to ensure proper cleanup.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
		now:  time.Now,
	}

	// WAL for concurrent reads during writes
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Referential cascade (project -> volumes -> chapters, project ->
	// characters) is enforced by the engine, not application code.
	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Path returns the on-disk path of the database file.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// MigrateLegacyPath moves a database file from a pre-rename installation to
// its current location. It must run before Open.
//
// The main file and its WAL side files (-wal, -shm) are renamed together.
// The migration never overwrites an existing file at the new path, and a
// partial failure is logged rather than returned: the caller proceeds and
// Open simply creates a fresh database.
func MigrateLegacyPath(oldPath, newPath string, logger *log.Logger) {
	if logger == nil {
		logger = log.New(os.Stderr, "[db] ", log.LstdFlags)
	}

	if _, err := os.Stat(newPath); err == nil {
		return // already migrated (or fresh install at the new path)
	}
	if _, err := os.Stat(oldPath); err != nil {
		return // nothing to migrate
	}

	if err := os.MkdirAll(filepath.Dir(newPath), 0755); err != nil {
		logger.Printf("WARNING: cannot create directory for %s: %v", newPath, err)
		return
	}

	if err := os.Rename(oldPath, newPath); err != nil {
		logger.Printf("WARNING: failed to migrate legacy database %s: %v", oldPath, err)
		return
	}
	logger.Printf("Migrated legacy database %s -> %s", oldPath, newPath)

	for _, suffix := range []string{"-wal", "-shm"} {
		src := oldPath + suffix
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, newPath+suffix); err != nil {
			logger.Printf("WARNING: failed to migrate %s: %v", src, err)
		}
	}
}

// InitSchema creates the database schema if it doesn't exist and applies
// additive column migrations. This is idempotent - safe to call on every
// startup.
func (db *DB) InitSchema(ctx context.Context) error {
	schemaSQL := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		inspiration TEXT NOT NULL DEFAULT '',
		constraints TEXT NOT NULL DEFAULT '',
		scale TEXT NOT NULL DEFAULT '',
		genres TEXT NOT NULL DEFAULT '[]',
		styles TEXT NOT NULL DEFAULT '[]',
		world_setting TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		synced_at TEXT
	);

	CREATE TABLE IF NOT EXISTS volumes (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		title TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL DEFAULT 0,
		key_points TEXT NOT NULL DEFAULT '[]',
		brief_chapters TEXT NOT NULL DEFAULT '[]',
		main_plot TEXT NOT NULL DEFAULT '',
		key_events TEXT NOT NULL DEFAULT '[]',
		generating_lock INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS chapters (
		id TEXT PRIMARY KEY,
		volume_id TEXT NOT NULL,
		title TEXT NOT NULL,
		outline TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		word_count INTEGER NOT NULL DEFAULT 0,
		sort_order INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (volume_id) REFERENCES volumes(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS characters (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT '',
		gender TEXT NOT NULL DEFAULT '',
		age TEXT NOT NULL DEFAULT '',
		identity TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		arc TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		death_chapter TEXT NOT NULL DEFAULT '',
		appearances TEXT NOT NULL DEFAULT '[]',
		relationships TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS deleted_projects (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		deleted_at TEXT NOT NULL,
		synced INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_volumes_project ON volumes(project_id);
	CREATE INDEX IF NOT EXISTS idx_volumes_sort ON volumes(project_id, sort_order);
	CREATE INDEX IF NOT EXISTS idx_chapters_volume ON chapters(volume_id);
	CREATE INDEX IF NOT EXISTS idx_chapters_sort ON chapters(volume_id, sort_order);
	CREATE INDEX IF NOT EXISTS idx_characters_project ON characters(project_id);
	CREATE INDEX IF NOT EXISTS idx_deleted_synced ON deleted_projects(synced);
	`

	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db.applyMigrations(ctx)
}

// migrations lists every additive column added after the initial schema.
// Each statement runs independently on every startup; "duplicate column"
// failures are expected and swallowed so re-runs are safe.
var migrations = []string{
	`ALTER TABLE projects ADD COLUMN version INTEGER NOT NULL DEFAULT 1`,
	`ALTER TABLE projects ADD COLUMN synced_at TEXT`,
	`ALTER TABLE volumes ADD COLUMN generating_lock INTEGER NOT NULL DEFAULT 0`,
	`ALTER TABLE characters ADD COLUMN death_chapter TEXT NOT NULL DEFAULT ''`,
}

func (db *DB) applyMigrations(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			if strings.Contains(err.Error(), "duplicate column name") {
				continue
			}
			return fmt.Errorf("failed to apply migration %q: %w", stmt, err)
		}
	}
	return nil
}

// SetClock overrides the time source used for timestamps and lock expiry.
// Intended for tests.
func (db *DB) SetClock(now func() time.Time) {
	db.now = now
}
