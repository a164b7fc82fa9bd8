package repo

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mschirtzinger/tileboard/internal/tiles/daemon"
	"github.com/mschirtzinger/tileboard/internal/tiles/schema"
)

// Memory is a process-local Repository. It backs `tb serve --memory` and
// the test suites of the packages above this one.
type Memory struct {
	mu       sync.RWMutex
	tiles    []schema.Tile
	updated  time.Time
	notifier *daemon.Notifier
	now      func() time.Time
}

var _ Repository = (*Memory)(nil)

// NewMemory returns an empty in-memory repository whose notifications are
// debounced by debounce.
func NewMemory(debounce time.Duration) *Memory {
	return &Memory{
		tiles:    []schema.Tile{},
		notifier: daemon.NewNotifier(debounce),
		now:      time.Now,
	}
}

// FetchAll implements Repository.FetchAll.
func (m *Memory) FetchAll(ctx context.Context) ([]schema.Tile, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return schema.Clone(m.tiles), nil
}

// ReplaceAll implements Repository.ReplaceAll.
func (m *Memory) ReplaceAll(ctx context.Context, tiles []schema.Tile) error {
	if err := schema.ValidateAll(tiles); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	m.mu.Lock()
	m.tiles = schema.Clone(tiles)
	if len(tiles) == 0 {
		m.updated = time.Time{}
	} else {
		m.updated = m.now().UTC()
	}
	m.mu.Unlock()

	m.notifier.Publish()
	return nil
}

// LastUpdated implements Repository.LastUpdated.
func (m *Memory) LastUpdated(ctx context.Context) (time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updated, nil
}

// Subscribe implements Repository.Subscribe.
func (m *Memory) Subscribe(fn daemon.Listener) (Subscription, error) {
	return funcSubscription(m.notifier.Subscribe(fn)), nil
}

// Touch publishes a change notification without changing data, the way a
// foreign client rewriting identical rows would.
func (m *Memory) Touch() {
	m.notifier.Publish()
}

// Close drops subscribers.
func (m *Memory) Close() error {
	m.notifier.Close()
	return nil
}
