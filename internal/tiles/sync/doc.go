// Package sync owns the canonical tile list shown to viewers.
//
// Overview
//
// A Controller sits between the tile repository and the display layer. It
// loads the collection once on start, seeds the built-in defaults into an
// empty store, and re-fetches the whole collection every time the
// repository signals a change. The canonical list is only ever replaced
// wholesale, so readers always see a consistent snapshot.
//
// Lifecycle
//
//	StateLoading ──fetch ok──────────▶ StateReady
//	     │                                 ▲   │
//	     └──fetch failed──▶ StateReadyWithError ◀┘ (save/reset/refetch error)
//	                        (defaults in memory, DismissError returns to Ready)
//
// Writes
//
// Save and Reset go through Repository.ReplaceAll. They are mutually
// exclusive: while one is in flight, Busy reports true and a second call
// returns ErrBusy. On success the new list is adopted immediately; the
// change notification that follows re-fetches the same data.
//
// Usage
//
//	store, err := repo.Open(ctx, repo.DefaultConfig("data/tiles.db"))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	ctrl := sync.New(store, nil)
//	if err := ctrl.Start(ctx); err != nil {
//	    return err
//	}
//	defer ctrl.Stop()
//
//	for _, t := range ctrl.Tiles() {
//	    fmt.Println(t.Label)
//	}
package sync
