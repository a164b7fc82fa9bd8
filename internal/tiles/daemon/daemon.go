package daemon

import (
	"fmt"
	"log"
	"os"
	"sync"
)

// Config holds configuration for the daemon.
type Config struct {
	// Logger for daemon activity
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Logger: log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon turns file system activity on a database into notifier events.
type Daemon struct {
	dbPath   string
	notifier *Notifier
	config   *Config
	watcher  *FileWatcher

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
}

// New creates a daemon for the database at dbPath publishing to notifier.
// Use Start() to begin watching.
func New(dbPath string, notifier *Notifier, config *Config) (*Daemon, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("dbPath cannot be empty")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = DefaultConfig().Logger
	}

	watcher, err := NewFileWatcher()
	if err != nil {
		return nil, err
	}

	return &Daemon{
		dbPath:   dbPath,
		notifier: notifier,
		config:   config,
		watcher:  watcher,
	}, nil
}

// Start begins watching the database files.
func (d *Daemon) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return fmt.Errorf("daemon already started")
	}
	if err := d.watcher.Start(d.dbPath); err != nil {
		return err
	}
	d.started = true

	d.config.Logger.Printf("Watching: %s", d.dbPath)

	d.wg.Add(1)
	go d.pump()
	return nil
}

// Stop shuts the watcher down and waits for the pump goroutine.
func (d *Daemon) Stop() error {
	err := d.watcher.Stop()
	d.wg.Wait()
	return err
}

// pump forwards file events to the notifier until the watcher closes.
func (d *Daemon) pump() {
	defer d.wg.Done()

	events := d.watcher.Events()
	errs := d.watcher.Errors()
	for events != nil || errs != nil {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op == OpDelete && ev.Kind == KindWAL {
				// WAL removal follows a checkpoint; the data did not change.
				continue
			}
			d.notifier.Publish()

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}
