package repo

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mschirtzinger/tileboard/internal/tiles/daemon"
	"github.com/mschirtzinger/tileboard/internal/tiles/db"
	"github.com/mschirtzinger/tileboard/internal/tiles/schema"
)

// Config configures a SQLite-backed repository.
type Config struct {
	// Path is the database file (created if missing).
	Path string

	// Debounce coalesces change notifications (default: 100ms).
	Debounce time.Duration

	// Watch enables the fsnotify watcher so writes from other processes
	// sharing the database produce notifications.
	Watch bool

	// Logger for repository activity (default: stderr with [repo] prefix)
	Logger *log.Logger

	// Now stamps written records (default: time.Now)
	Now func() time.Time
}

// DefaultConfig returns sensible defaults for the database at path.
func DefaultConfig(path string) *Config {
	return &Config{
		Path:     path,
		Debounce: 100 * time.Millisecond,
		Watch:    true,
		Logger:   log.New(os.Stderr, "[repo] ", log.LstdFlags),
		Now:      time.Now,
	}
}

// SQLite implements Repository on top of the db package.
type SQLite struct {
	config   *Config
	notifier *daemon.Notifier
	daemon   *daemon.Daemon

	mu     sync.RWMutex
	store  *db.DB
	closed bool
}

var _ Repository = (*SQLite)(nil)

// Open connects to the database, creates the schema and, if configured,
// starts watching for foreign writes. The caller MUST call Close().
func Open(ctx context.Context, config *Config) (*SQLite, error) {
	if config == nil || config.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	defaults := DefaultConfig(config.Path)
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Now == nil {
		config.Now = defaults.Now
	}
	if config.Debounce <= 0 {
		config.Debounce = defaults.Debounce
	}

	store, err := db.OpenContext(ctx, config.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := store.InitSchemaContext(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	r := &SQLite{
		config:   config,
		notifier: daemon.NewNotifier(config.Debounce),
		store:    store,
	}

	if config.Watch {
		d, err := daemon.New(store.Path(), r.notifier, &daemon.Config{Logger: config.Logger})
		if err != nil {
			r.notifier.Close()
			_ = store.Close()
			return nil, fmt.Errorf("failed to create watcher: %w", err)
		}
		if err := d.Start(); err != nil {
			r.notifier.Close()
			_ = store.Close()
			return nil, fmt.Errorf("failed to start watcher: %w", err)
		}
		r.daemon = d
	}

	config.Logger.Printf("Opened tile store %s", store.Path())
	return r, nil
}

// Path returns the database file path.
func (r *SQLite) Path() string {
	return r.config.Path
}

// FetchAll implements Repository.FetchAll.
func (r *SQLite) FetchAll(ctx context.Context) ([]schema.Tile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("%w: repository closed", ErrStoreUnavailable)
	}

	records, err := r.store.SelectAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	tiles := make([]schema.Tile, len(records))
	for i, rec := range records {
		tiles[i] = rec.Tile
	}
	return tiles, nil
}

// ReplaceAll implements Repository.ReplaceAll.
//
// Validation happens before anything is written. The delete and inserts
// share one SQLite transaction.
func (r *SQLite) ReplaceAll(ctx context.Context, tiles []schema.Tile) error {
	if err := schema.ValidateAll(tiles); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return fmt.Errorf("%w: repository closed", ErrStoreUnavailable)
	}

	if err := r.store.ReplaceAll(ctx, tiles, r.config.Now()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	r.config.Logger.Printf("Replaced collection with %d tiles", len(tiles))
	r.notifier.Publish()
	return nil
}

// LastUpdated implements Repository.LastUpdated.
func (r *SQLite) LastUpdated(ctx context.Context) (time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return time.Time{}, fmt.Errorf("%w: repository closed", ErrStoreUnavailable)
	}

	ts, err := r.store.LastUpdated(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ts, nil
}

// Subscribe implements Repository.Subscribe.
func (r *SQLite) Subscribe(fn daemon.Listener) (Subscription, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, fmt.Errorf("%w: repository closed", ErrStoreUnavailable)
	}
	return funcSubscription(r.notifier.Subscribe(fn)), nil
}

// Close stops the watcher, drops subscribers and closes the database.
func (r *SQLite) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	if r.daemon != nil {
		if err := r.daemon.Stop(); err != nil {
			r.config.Logger.Printf("Error stopping watcher: %v", err)
		}
	}
	r.notifier.Close()
	return r.store.Close()
}
