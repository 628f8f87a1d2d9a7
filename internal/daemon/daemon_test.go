package daemon

import (
	"context"
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/inkstone/inkstone/internal/db"
	"github.com/inkstone/inkstone/internal/sync"
)

func testEngine(t *testing.T) (*sync.Engine, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.InitSchema(context.Background()); err != nil {
		t.Fatalf("InitSchema() failed: %v", err)
	}
	// No token: every run aborts at the precondition without touching the
	// network, which is all the lifecycle tests need.
	client := sync.NewClient("http://127.0.0.1:0", "", nil)
	return sync.NewEngine(store, client, log.New(io.Discard, "", 0)), dbPath
}

func quietConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logger = log.New(io.Discard, "", 0)
	return cfg
}

func TestNew_Validation(t *testing.T) {
	engine, dbPath := testEngine(t)

	if _, err := New(nil, dbPath, nil); err == nil {
		t.Error("nil engine must be rejected")
	}
	if _, err := New(engine, "", nil); err == nil {
		t.Error("empty db path must be rejected")
	}

	d, err := New(engine, dbPath, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer d.Stop()
	if d.config.DebounceInterval != 30*time.Second {
		t.Errorf("DebounceInterval = %v, want default 30s", d.config.DebounceInterval)
	}
	if d.config.SyncInterval != 15*time.Minute {
		t.Errorf("SyncInterval = %v, want default 15m", d.config.SyncInterval)
	}
}

func TestStartStop(t *testing.T) {
	engine, dbPath := testEngine(t)
	d, err := New(engine, dbPath, quietConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	// Give the watcher and sync loop time to come up, then shut down.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop after context cancellation")
	}
}

func TestMarkChanged_Debounce(t *testing.T) {
	engine, dbPath := testEngine(t)
	cfg := quietConfig()
	cfg.DebounceInterval = time.Hour
	d, err := New(engine, dbPath, cfg)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	defer d.Stop()

	d.markChanged()
	d.changeMu.Lock()
	defer d.changeMu.Unlock()
	if !d.lastChanged {
		t.Error("markChanged must flag a pending change")
	}
	if time.Since(d.lastChange) >= cfg.DebounceInterval {
		t.Error("a fresh change must still be inside the debounce window")
	}
}
