// Package repo is the authoritative tile repository: read the ordered
// collection, replace it atomically, and hear about changes.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/mschirtzinger/tileboard/internal/tiles/daemon"
	"github.com/mschirtzinger/tileboard/internal/tiles/schema"
)

// Errors returned by repository operations. Check with errors.Is().
var (
	// ErrStoreUnavailable is returned when the backing store cannot be
	// reached or has been closed.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrValidation is returned when a write payload is malformed
	// (invalid tile, duplicate id). Nothing is written.
	ErrValidation = errors.New("validation error")
)

// Repository is the contract between the sync controller and the store.
//
// There is no per-tile update: all mutations go through ReplaceAll and
// land as one logical write.
type Repository interface {
	// FetchAll returns every tile ordered by persisted position ascending.
	//
	// Returns ErrStoreUnavailable (wrapped) when the store cannot be read.
	FetchAll(ctx context.Context) ([]schema.Tile, error)

	// ReplaceAll discards all existing records and stores tiles with
	// position = index. From the caller's view it either fully succeeds or
	// fails; on failure the remote state may be whatever the store left.
	//
	// Returns ErrValidation or ErrStoreUnavailable (wrapped).
	ReplaceAll(ctx context.Context, tiles []schema.Tile) error

	// LastUpdated returns the newest record timestamp, zero when empty.
	LastUpdated(ctx context.Context) (time.Time, error)

	// Subscribe registers fn to be called with daemon.Invalidate whenever
	// any client inserts, updates or deletes a record, including this one.
	// Treat every call as "re-fetch everything".
	Subscribe(fn daemon.Listener) (Subscription, error)
}

// Subscription is the handle returned by Subscribe.
type Subscription interface {
	// Unsubscribe stops deliveries. Safe to call more than once.
	Unsubscribe()
}

// funcSubscription adapts an unsubscribe func to Subscription.
type funcSubscription func()

func (f funcSubscription) Unsubscribe() { f() }
