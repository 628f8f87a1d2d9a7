package db

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// testDB opens a fresh database in a temp directory with the schema applied.
func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	return db
}

func TestOpen_Success(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if db.Path() != path {
		t.Errorf("Path() = %q, want %q", db.Path(), path)
	}
}

func TestInitSchema_CreatesTables(t *testing.T) {
	db := testDB(t)

	tables := []string{"projects", "volumes", "chapters", "characters", "settings", "deleted_projects"}
	for _, table := range tables {
		var count int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`
		if err := db.conn.QueryRow(query, table).Scan(&count); err != nil {
			t.Fatalf("Failed to query table %s: %v", table, err)
		}
		if count != 1 {
			t.Errorf("Table %s does not exist", table)
		}
	}
}

func TestInitSchema_Idempotent(t *testing.T) {
	db := testDB(t)

	// Second run must tolerate existing tables and existing migration columns.
	if err := db.InitSchema(context.Background()); err != nil {
		t.Errorf("Second InitSchema() failed: %v", err)
	}
	if err := db.InitSchema(context.Background()); err != nil {
		t.Errorf("Third InitSchema() failed: %v", err)
	}
}

func TestApplyMigrations_AddsMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	// Simulate a database created before the version/synced_at columns.
	_, err = db.conn.Exec(`CREATE TABLE projects (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		inspiration TEXT NOT NULL DEFAULT '',
		constraints TEXT NOT NULL DEFAULT '',
		scale TEXT NOT NULL DEFAULT '',
		genres TEXT NOT NULL DEFAULT '[]',
		styles TEXT NOT NULL DEFAULT '[]',
		world_setting TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`)
	if err != nil {
		t.Fatalf("failed to create legacy table: %v", err)
	}

	if err := db.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() on legacy database failed: %v", err)
	}

	var count int
	err = db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info('projects') WHERE name IN ('version', 'synced_at')`,
	).Scan(&count)
	if err != nil {
		t.Fatalf("failed to inspect columns: %v", err)
	}
	if count != 2 {
		t.Errorf("expected version and synced_at columns after migration, found %d of 2", count)
	}
}

func TestMigrateLegacyPath_MovesFiles(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "novel.db")
	newPath := filepath.Join(dir, "inkstone.db")

	for _, p := range []string{oldPath, oldPath + "-wal", oldPath + "-shm"} {
		if err := os.WriteFile(p, []byte("data"), 0644); err != nil {
			t.Fatalf("failed to seed %s: %v", p, err)
		}
	}

	MigrateLegacyPath(oldPath, newPath, log.New(os.Stderr, "", 0))

	for _, p := range []string{newPath, newPath + "-wal", newPath + "-shm"} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist after migration: %v", p, err)
		}
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Errorf("expected old path to be gone, stat err = %v", err)
	}
}

func TestMigrateLegacyPath_NeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	oldPath := filepath.Join(dir, "novel.db")
	newPath := filepath.Join(dir, "inkstone.db")

	if err := os.WriteFile(oldPath, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(newPath, []byte("new"), 0644); err != nil {
		t.Fatal(err)
	}

	MigrateLegacyPath(oldPath, newPath, log.New(os.Stderr, "", 0))

	data, err := os.ReadFile(newPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "new" {
		t.Errorf("new path was overwritten: %q", data)
	}
	if _, err := os.Stat(oldPath); err != nil {
		t.Errorf("old path should be untouched: %v", err)
	}
}

func TestMigrateLegacyPath_NothingToMigrate(t *testing.T) {
	dir := t.TempDir()
	// Neither path exists; must be a no-op, not a failure.
	MigrateLegacyPath(filepath.Join(dir, "a.db"), filepath.Join(dir, "b.db"), nil)
}

// fixedClock installs a controllable clock on the database.
func fixedClock(db *DB, start time.Time) *time.Time {
	current := start
	db.SetClock(func() time.Time { return current })
	return &current
}
