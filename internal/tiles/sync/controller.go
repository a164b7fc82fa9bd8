package sync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mschirtzinger/tileboard/internal/tiles/daemon"
	"github.com/mschirtzinger/tileboard/internal/tiles/repo"
	"github.com/mschirtzinger/tileboard/internal/tiles/schema"
)

// ErrBusy is returned by Save and Reset while another save or reset is in
// flight.
var ErrBusy = errors.New("a save or reset is already in progress")

// State is the controller lifecycle state.
type State int

const (
	// StateLoading is the state before the first fetch resolves.
	StateLoading State = iota
	// StateReady means the canonical list reflects the store.
	StateReady
	// StateReadyWithError means the list is usable but an error is waiting
	// to be dismissed.
	StateReadyWithError
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateReadyWithError:
		return "ready_with_error"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(text []byte) error {
	for _, candidate := range []State{StateLoading, StateReady, StateReadyWithError} {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Config configures a Controller.
type Config struct {
	// Defaults seeded into an empty store and used as the fallback list
	// (default: schema.DefaultTiles()).
	Defaults []schema.Tile

	// FetchTimeout bounds each re-fetch triggered by a change notification
	// (default: 10s).
	FetchTimeout time.Duration

	// Logger for controller activity (default: stderr with [sync] prefix)
	Logger *log.Logger

	// Now stamps successful saves (default: time.Now)
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Defaults:     schema.DefaultTiles(),
		FetchTimeout: 10 * time.Second,
		Logger:       log.New(os.Stderr, "[sync] ", log.LstdFlags),
		Now:          time.Now,
	}
}

// Snapshot is a point-in-time view of the controller for the display layer.
type Snapshot struct {
	Tiles       []schema.Tile `json:"tiles"`
	LastUpdated *time.Time    `json:"lastUpdated"`
	State       State         `json:"state"`
	Error       string        `json:"error,omitempty"`
	Busy        bool          `json:"busy"`
}

// Controller owns the canonical tile list.
type Controller struct {
	repo   repo.Repository
	config *Config
	logger *log.Logger

	mu          sync.RWMutex
	tiles       []schema.Tile
	lastUpdated time.Time
	loaded      bool
	lastErr     error

	busy atomic.Bool

	listenersMu sync.Mutex
	listeners   map[uint64]func(Snapshot)
	nextID      uint64

	started  atomic.Bool
	sub      repo.Subscription
	refetch  chan struct{}
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a controller over r. A nil config uses DefaultConfig().
// Zero fields of a non-nil config are filled from the defaults.
func New(r repo.Repository, config *Config) *Controller {
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.Defaults == nil {
		config.Defaults = defaults.Defaults
	}
	if config.FetchTimeout <= 0 {
		config.FetchTimeout = defaults.FetchTimeout
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Now == nil {
		config.Now = defaults.Now
	}

	return &Controller{
		repo:      r,
		config:    config,
		logger:    config.Logger,
		tiles:     []schema.Tile{},
		listeners: make(map[uint64]func(Snapshot)),
		refetch:   make(chan struct{}, 1),
	}
}

// Start performs the initial load and subscribes to change notifications.
//
// A failed load is not returned: the controller falls back to the defaults
// (kept in memory only) and moves to StateReadyWithError. Start returns an
// error only when called twice.
func (c *Controller) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("controller already started")
	}

	// Subscribe before the first fetch so a write landing in between is
	// still picked up by the loop.
	sub, subErr := c.repo.Subscribe(func(daemon.Event) {
		select {
		case c.refetch <- struct{}{}:
		default:
		}
	})

	c.load(ctx)

	if subErr != nil {
		c.logger.Printf("Failed to subscribe to changes: %v", subErr)
		c.setError(fmt.Errorf("failed to subscribe to changes: %w", subErr))
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.sub = sub
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go c.loop(loopCtx)

	c.notify()
	return nil
}

// load runs the initial fetch, seeding an empty store.
func (c *Controller) load(ctx context.Context) {
	tiles, err := c.repo.FetchAll(ctx)
	if err != nil {
		c.logger.Printf("Initial fetch failed, using built-in defaults: %v", err)
		c.mu.Lock()
		c.tiles = schema.Clone(c.config.Defaults)
		c.lastUpdated = time.Time{}
		c.loaded = true
		c.lastErr = fmt.Errorf("failed to load tiles: %w", err)
		c.mu.Unlock()
		return
	}

	if len(tiles) == 0 {
		c.logger.Printf("Store is empty, seeding %d default tiles", len(c.config.Defaults))
		defaults := schema.Clone(c.config.Defaults)
		if err := c.repo.ReplaceAll(ctx, defaults); err != nil {
			c.logger.Printf("Failed to seed defaults: %v", err)
			c.mu.Lock()
			c.tiles = defaults
			c.loaded = true
			c.lastErr = fmt.Errorf("failed to seed default tiles: %w", err)
			c.mu.Unlock()
			return
		}
		tiles = defaults
	}

	updated, err := c.repo.LastUpdated(ctx)
	if err != nil {
		c.logger.Printf("Failed to read last updated: %v", err)
	}

	c.mu.Lock()
	c.tiles = schema.Clone(tiles)
	c.lastUpdated = updated
	c.loaded = true
	c.mu.Unlock()
	c.logger.Printf("Loaded %d tiles", len(tiles))
}

// loop re-fetches on every change signal until Stop.
func (c *Controller) loop(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.refetch:
			fetchCtx, cancel := context.WithTimeout(ctx, c.config.FetchTimeout)
			if err := c.Refresh(fetchCtx); err != nil && ctx.Err() == nil {
				c.logger.Printf("Refetch failed: %v", err)
			}
			cancel()
		}
	}
}

// Refresh re-fetches the whole collection and replaces the canonical list.
// On failure the current list is kept and the error is recorded.
//
// Fetching the list the controller already holds changes nothing, so the
// echo of our own Save or Reset keeps the locally recorded last-updated.
func (c *Controller) Refresh(ctx context.Context) error {
	tiles, err := c.repo.FetchAll(ctx)
	if err != nil {
		err = fmt.Errorf("failed to refresh tiles: %w", err)
		if ctx.Err() == nil {
			c.setError(err)
			c.notify()
		}
		return err
	}

	c.mu.RLock()
	same := c.loaded && schema.Equal(c.tiles, tiles)
	c.mu.RUnlock()
	if same {
		return nil
	}

	updated, err := c.repo.LastUpdated(ctx)
	if err != nil {
		c.logger.Printf("Failed to read last updated: %v", err)
	}

	c.mu.Lock()
	c.tiles = tiles
	if err == nil {
		c.lastUpdated = updated
	}
	c.mu.Unlock()

	c.notify()
	return nil
}

// Save replaces the stored collection with tiles and, on success, adopts
// them as canonical with the commit time as last-updated.
//
// Returns ErrBusy if a save or reset is already running. On any other
// failure the canonical list is unchanged and the error is also recorded
// for display.
func (c *Controller) Save(ctx context.Context, tiles []schema.Tile) error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	c.notify()

	next := schema.Clone(tiles)
	err := c.repo.ReplaceAll(ctx, next)
	if err == nil {
		c.mu.Lock()
		c.tiles = next
		c.lastUpdated = c.config.Now().UTC()
		c.mu.Unlock()
		c.logger.Printf("Saved %d tiles", len(next))
	} else {
		err = fmt.Errorf("failed to save tiles: %w", err)
		c.logger.Printf("%v", err)
		c.setError(err)
	}

	c.busy.Store(false)
	c.notify()
	return err
}

// Reset wipes the stored collection back to the defaults and clears
// last-updated.
//
// Returns ErrBusy if a save or reset is already running.
func (c *Controller) Reset(ctx context.Context) error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	c.notify()

	defaults := schema.Clone(c.config.Defaults)
	err := c.repo.ReplaceAll(ctx, defaults)
	if err == nil {
		c.mu.Lock()
		c.tiles = defaults
		c.lastUpdated = time.Time{}
		c.mu.Unlock()
		c.logger.Printf("Reset to %d default tiles", len(defaults))
	} else {
		err = fmt.Errorf("failed to reset tiles: %w", err)
		c.logger.Printf("%v", err)
		c.setError(err)
	}

	c.busy.Store(false)
	c.notify()
	return err
}

// Tiles returns a copy of the canonical list.
func (c *Controller) Tiles() []schema.Tile {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return schema.Clone(c.tiles)
}

// Defaults returns a copy of the configured default set.
func (c *Controller) Defaults() []schema.Tile {
	return schema.Clone(c.config.Defaults)
}

// LastUpdated returns the newest record time, zero when unknown or reset.
func (c *Controller) LastUpdated() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdated
}

// Busy reports whether a save or reset is in flight.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stateLocked()
}

func (c *Controller) stateLocked() State {
	switch {
	case !c.loaded:
		return StateLoading
	case c.lastErr != nil:
		return StateReadyWithError
	default:
		return StateReady
	}
}

// Err returns the pending user-visible error, if any.
func (c *Controller) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// DismissError clears the pending error.
func (c *Controller) DismissError() {
	c.mu.Lock()
	changed := c.lastErr != nil
	c.lastErr = nil
	c.mu.Unlock()
	if changed {
		c.notify()
	}
}

func (c *Controller) setError(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// Snapshot returns the current view for the display layer.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		Tiles: schema.Clone(c.tiles),
		State: c.stateLocked(),
		Busy:  c.busy.Load(),
	}
	if !c.lastUpdated.IsZero() {
		t := c.lastUpdated
		snap.LastUpdated = &t
	}
	if c.lastErr != nil {
		snap.Error = c.lastErr.Error()
	}
	return snap
}

// OnChange registers fn to receive a snapshot after every observable
// change. Calls happen synchronously on the goroutine that made the change,
// so fn must not block.
func (c *Controller) OnChange(fn func(Snapshot)) (unsubscribe func()) {
	c.listenersMu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.listenersMu.Lock()
			delete(c.listeners, id)
			c.listenersMu.Unlock()
		})
	}
}

func (c *Controller) notify() {
	c.listenersMu.Lock()
	fns := make([]func(Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenersMu.Unlock()
	if len(fns) == 0 {
		return
	}

	snap := c.Snapshot()
	for _, fn := range fns {
		fn(snap)
	}
}

// Stop unsubscribes from the repository and waits for the refetch loop.
// Safe to call more than once, and before Start.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		sub, cancel := c.sub, c.cancel
		c.mu.Unlock()

		if sub != nil {
			sub.Unsubscribe()
		}
		if cancel != nil {
			cancel()
		}
		c.wg.Wait()
	})
}
