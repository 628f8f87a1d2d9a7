// Package daemon provides the auto-sync daemon: it watches the local
// database for writes and pushes a debounced sync run after each burst of
// editing, with a periodic fallback run for changes the watcher misses.
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	gosync "sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/inkstone/inkstone/internal/sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// DebounceInterval is how long the daemon waits after the last
	// observed write before starting a sync run. This batches rapid
	// editing into one run.
	DebounceInterval time.Duration

	// SyncInterval is the periodic fallback: a run is started this long
	// after the previous one even without observed writes.
	SyncInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DebounceInterval: 30 * time.Second,
		SyncInterval:     15 * time.Minute,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates database watching and sync runs. Runs are serialized:
// the engine is not reentrant, so a new trigger while a run is in flight
// simply queues the next one.
type Daemon struct {
	engine *sync.Engine
	dbPath string
	config *Config

	watcher     *fsnotify.Watcher
	lastChange  time.Time
	lastChanged bool
	changeMu    gosync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// New creates a new Daemon instance watching the database at dbPath and
// driving the given sync engine.
func New(engine *sync.Engine, dbPath string, config *Config) (*Daemon, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if dbPath == "" {
		return nil, fmt.Errorf("dbPath cannot be empty")
	}
	if config == nil {
		config = DefaultConfig()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Daemon{
		engine:  engine,
		dbPath:  dbPath,
		config:  config,
		watcher: watcher,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins watching and syncing. An initial run is performed
// immediately. Blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting auto-sync daemon")

	d.runSync()

	// Watch the directory rather than the file: SQLite replaces WAL side
	// files, and watches on replaced files go stale.
	if err := d.watcher.Add(filepath.Dir(d.dbPath)); err != nil {
		return fmt.Errorf("failed to watch database directory: %w", err)
	}
	d.config.Logger.Printf("Watching: %s", filepath.Dir(d.dbPath))

	d.wg.Add(2)
	go d.watchFileEvents()
	go d.syncLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")
	d.cancel()
	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}
	d.wg.Wait()
	d.config.Logger.Println("Daemon stopped")
	return nil
}

// watchFileEvents monitors filesystem events on the database files and
// records the time of the last write.
func (d *Daemon) watchFileEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			// Only the database and its WAL matter.
			if !strings.HasPrefix(event.Name, d.dbPath) {
				continue
			}
			d.markChanged()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) markChanged() {
	d.changeMu.Lock()
	defer d.changeMu.Unlock()
	d.lastChange = time.Now()
	d.lastChanged = true
}

// syncLoop starts a run once observed writes have settled for the debounce
// interval, and unconditionally every SyncInterval.
func (d *Daemon) syncLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	lastRun := time.Now()
	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.changeMu.Lock()
			pending := d.lastChanged && time.Since(d.lastChange) >= d.config.DebounceInterval
			if pending {
				d.lastChanged = false
			}
			d.changeMu.Unlock()

			if pending || time.Since(lastRun) >= d.config.SyncInterval {
				d.runSync()
				lastRun = time.Now()
			}
		}
	}
}

// runSync performs one engine run and logs its outcome.
func (d *Daemon) runSync() {
	result := d.engine.Run(d.ctx)
	if result.Success {
		d.config.Logger.Printf("Sync complete: uploaded=%d downloaded=%d deleted=%d skipped=%d",
			result.Uploaded, result.Downloaded, result.Deleted, result.SkippedDeleted)
		return
	}
	d.config.Logger.Printf("Sync finished with %d errors (uploaded=%d downloaded=%d conflicts=%d)",
		len(result.Errors), result.Uploaded, result.Downloaded, result.Conflicts)
	for _, msg := range result.Errors {
		d.config.Logger.Printf("  %s", msg)
	}
}
