package sync

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/mschirtzinger/tileboard/internal/tiles/repo"
	"github.com/mschirtzinger/tileboard/internal/tiles/schema"
)

var errOffline = errors.New("offline")

// flakyRepo wraps a memory repository and fails on demand. afterFetch,
// when set, runs once after the next successful FetchAll has read its
// result, so a write can land between a fetch and its caller.
type flakyRepo struct {
	*repo.Memory

	mu         sync.Mutex
	fetchErr   error
	replaceErr error
	block      chan struct{}
	replaces   int
	afterFetch func()
}

func newFlakyRepo() *flakyRepo {
	return &flakyRepo{Memory: repo.NewMemory(5 * time.Millisecond)}
}

func (f *flakyRepo) setFetchErr(err error) {
	f.mu.Lock()
	f.fetchErr = err
	f.mu.Unlock()
}

func (f *flakyRepo) setReplaceErr(err error) {
	f.mu.Lock()
	f.replaceErr = err
	f.mu.Unlock()
}

func (f *flakyRepo) FetchAll(ctx context.Context) ([]schema.Tile, error) {
	f.mu.Lock()
	err, hook := f.fetchErr, f.afterFetch
	f.afterFetch = nil
	f.mu.Unlock()
	if err != nil {
		return nil, errors.Join(repo.ErrStoreUnavailable, err)
	}
	tiles, err := f.Memory.FetchAll(ctx)
	if hook != nil {
		hook()
	}
	return tiles, err
}

func (f *flakyRepo) ReplaceAll(ctx context.Context, tiles []schema.Tile) error {
	f.mu.Lock()
	err, block := f.replaceErr, f.block
	f.replaces++
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if err != nil {
		return errors.Join(repo.ErrStoreUnavailable, err)
	}
	return f.Memory.ReplaceAll(ctx, tiles)
}

func (f *flakyRepo) replaceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.replaces
}

func quietConfig() *Config {
	cfg := DefaultConfig()
	cfg.Logger = log.New(io.Discard, "", 0)
	return cfg
}

func startController(t *testing.T, r repo.Repository, cfg *Config) *Controller {
	t.Helper()
	if cfg == nil {
		cfg = quietConfig()
	}
	c := New(r, cfg)
	if c.State() != StateLoading {
		t.Fatalf("State() before Start = %v, want loading", c.State())
	}
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(c.Stop)
	return c
}

// waitFor polls cond until it holds or timeout passes.
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func diffTiles(t *testing.T, what string, want, got []schema.Tile) {
	t.Helper()
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("%s mismatch (-want +got):\n%s", what, diff)
	}
}

func TestStart_SeedsEmptyStore(t *testing.T) {
	r := newFlakyRepo()
	c := startController(t, r, nil)

	if c.State() != StateReady {
		t.Errorf("State() = %v, want ready", c.State())
	}
	diffTiles(t, "Tiles()", schema.DefaultTiles(), c.Tiles())
	if c.LastUpdated().IsZero() {
		t.Error("seeding did not stamp last updated")
	}

	stored, err := r.Memory.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}
	diffTiles(t, "stored tiles", schema.DefaultTiles(), stored)
}

func TestStart_AdoptsExistingTiles(t *testing.T) {
	r := newFlakyRepo()
	existing := []schema.Tile{{ID: "a", Label: "Mail"}, {ID: "b", Label: "Teams"}}
	if err := r.Memory.ReplaceAll(context.Background(), existing); err != nil {
		t.Fatalf("ReplaceAll() failed: %v", err)
	}

	c := startController(t, r, nil)

	diffTiles(t, "Tiles()", existing, c.Tiles())
	if n := r.replaceCount(); n != 0 {
		t.Errorf("populated store was seeded (%d writes)", n)
	}
}

func TestStart_WriteDuringInitialFetch(t *testing.T) {
	r := newFlakyRepo()
	stale := []schema.Tile{{ID: "a", Label: "Mail"}}
	remote := []schema.Tile{{ID: "x", Label: "From elsewhere"}}
	if err := r.Memory.ReplaceAll(context.Background(), stale); err != nil {
		t.Fatalf("ReplaceAll() failed: %v", err)
	}
	r.afterFetch = func() {
		if err := r.Memory.ReplaceAll(context.Background(), remote); err != nil {
			t.Errorf("ReplaceAll() during fetch failed: %v", err)
		}
		// Let the debounced notification fire before Start continues.
		time.Sleep(30 * time.Millisecond)
	}

	c := startController(t, r, nil)

	if !waitFor(2*time.Second, func() bool { return schema.Equal(c.Tiles(), remote) }) {
		t.Errorf("write during the first fetch was missed: Tiles() = %v", schema.IDs(c.Tiles()))
	}
}

func TestStart_FetchFailureFallsBackToDefaults(t *testing.T) {
	r := newFlakyRepo()
	r.setFetchErr(errOffline)

	c := startController(t, r, nil)

	if c.State() != StateReadyWithError {
		t.Errorf("State() = %v, want ready_with_error", c.State())
	}
	diffTiles(t, "Tiles()", schema.DefaultTiles(), c.Tiles())
	if !errors.Is(c.Err(), repo.ErrStoreUnavailable) {
		t.Errorf("Err() = %v, want ErrStoreUnavailable", c.Err())
	}
	if n := r.replaceCount(); n != 0 {
		t.Errorf("fallback defaults were persisted (%d writes)", n)
	}

	c.DismissError()
	if c.State() != StateReady || c.Err() != nil {
		t.Errorf("after DismissError(): state=%v err=%v", c.State(), c.Err())
	}
}

func TestStart_SeedFailureKeepsDefaultsInMemory(t *testing.T) {
	r := newFlakyRepo()
	r.setReplaceErr(errOffline)

	c := startController(t, r, nil)

	if c.State() != StateReadyWithError {
		t.Errorf("State() = %v, want ready_with_error", c.State())
	}
	diffTiles(t, "Tiles()", schema.DefaultTiles(), c.Tiles())
}

func TestStart_Twice(t *testing.T) {
	c := startController(t, newFlakyRepo(), nil)
	if err := c.Start(context.Background()); err == nil {
		t.Error("second Start() succeeded")
	}
}

func TestStart_CustomDefaults(t *testing.T) {
	cfg := quietConfig()
	cfg.Defaults = []schema.Tile{{ID: "only", Label: "Only", Icon: "app"}}

	c := startController(t, newFlakyRepo(), cfg)
	diffTiles(t, "Tiles()", cfg.Defaults, c.Tiles())
}

func TestChangeNotificationRefetches(t *testing.T) {
	r := newFlakyRepo()
	c := startController(t, r, nil)

	remote := []schema.Tile{{ID: "x", Label: "From elsewhere"}}
	if err := r.Memory.ReplaceAll(context.Background(), remote); err != nil {
		t.Fatalf("ReplaceAll() failed: %v", err)
	}

	if !waitFor(2*time.Second, func() bool { return schema.Equal(c.Tiles(), remote) }) {
		t.Errorf("remote write not picked up: Tiles() = %v", schema.IDs(c.Tiles()))
	}
}

func TestRefreshFailureKeepsList(t *testing.T) {
	r := newFlakyRepo()
	c := startController(t, r, nil)
	before := c.Tiles()

	r.setFetchErr(errOffline)
	err := c.Refresh(context.Background())

	if !errors.Is(err, repo.ErrStoreUnavailable) {
		t.Fatalf("Refresh() error = %v, want ErrStoreUnavailable", err)
	}
	diffTiles(t, "Tiles()", before, c.Tiles())
	if c.State() != StateReadyWithError {
		t.Errorf("State() = %v, want ready_with_error", c.State())
	}
}

func TestSave_AdoptsOptimistically(t *testing.T) {
	r := newFlakyRepo()
	stamp := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	cfg := quietConfig()
	cfg.Now = func() time.Time { return stamp }
	c := startController(t, r, cfg)

	next := []schema.Tile{{ID: "b", Label: "Teams"}, {ID: "a", Label: "Mail"}}
	if err := c.Save(context.Background(), next); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	diffTiles(t, "Tiles()", next, c.Tiles())
	if !c.LastUpdated().Equal(stamp) {
		t.Errorf("LastUpdated() = %v, want %v", c.LastUpdated(), stamp)
	}
	if c.Busy() {
		t.Error("Busy() = true after Save returned")
	}

	stored, err := r.Memory.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}
	diffTiles(t, "stored tiles", next, stored)
}

func TestSave_DoesNotAliasInput(t *testing.T) {
	c := startController(t, newFlakyRepo(), nil)

	next := []schema.Tile{{ID: "a", Label: "Mail"}}
	if err := c.Save(context.Background(), next); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	next[0].Label = "changed after save"

	if got := c.Tiles()[0].Label; got != "Mail" {
		t.Errorf("label = %q, want Mail", got)
	}
}

func TestSave_FailureKeepsPriorState(t *testing.T) {
	r := newFlakyRepo()
	c := startController(t, r, nil)
	before := c.Tiles()
	beforeUpdated := c.LastUpdated()

	r.setReplaceErr(errOffline)
	err := c.Save(context.Background(), []schema.Tile{{ID: "z"}})

	if !errors.Is(err, repo.ErrStoreUnavailable) {
		t.Fatalf("Save() error = %v, want ErrStoreUnavailable", err)
	}
	diffTiles(t, "Tiles()", before, c.Tiles())
	if !c.LastUpdated().Equal(beforeUpdated) {
		t.Errorf("LastUpdated() = %v, want %v", c.LastUpdated(), beforeUpdated)
	}
	if c.State() != StateReadyWithError {
		t.Errorf("State() = %v, want ready_with_error", c.State())
	}
	if c.Busy() {
		t.Error("Busy() = true after failed Save")
	}
}

func TestSave_ValidationError(t *testing.T) {
	c := startController(t, newFlakyRepo(), nil)

	err := c.Save(context.Background(), []schema.Tile{{ID: "a"}, {ID: "a"}})
	if !errors.Is(err, repo.ErrValidation) {
		t.Errorf("Save(duplicate ids) error = %v, want ErrValidation", err)
	}
}

func TestBusyGuard(t *testing.T) {
	r := newFlakyRepo()
	c := startController(t, r, nil)

	release := make(chan struct{})
	r.mu.Lock()
	r.block = release
	r.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- c.Save(context.Background(), []schema.Tile{{ID: "a"}})
	}()

	if !waitFor(time.Second, c.Busy) {
		t.Fatal("controller never became busy")
	}
	if err := c.Save(context.Background(), nil); !errors.Is(err, ErrBusy) {
		t.Errorf("Save() while busy error = %v, want ErrBusy", err)
	}
	if err := c.Reset(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("Reset() while busy error = %v, want ErrBusy", err)
	}
	if got, want := len(c.Tiles()), len(schema.DefaultTiles()); got != want {
		t.Errorf("len(Tiles()) while busy = %d, want %d", got, want)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if c.Busy() {
		t.Error("Busy() = true after Save returned")
	}
	diffTiles(t, "Tiles()", []schema.Tile{{ID: "a"}}, c.Tiles())
}

func TestReset(t *testing.T) {
	r := newFlakyRepo()
	c := startController(t, r, nil)
	if err := c.Save(context.Background(), []schema.Tile{{ID: "a", Label: "Mail"}}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if c.LastUpdated().IsZero() {
		t.Fatal("LastUpdated() is zero after Save")
	}

	if err := c.Reset(context.Background()); err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}

	diffTiles(t, "Tiles()", schema.DefaultTiles(), c.Tiles())
	if !c.LastUpdated().IsZero() {
		t.Errorf("LastUpdated() = %v after reset, want zero", c.LastUpdated())
	}
	stored, err := r.Memory.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll() failed: %v", err)
	}
	diffTiles(t, "stored tiles", schema.DefaultTiles(), stored)
}

func TestTilesReturnsCopy(t *testing.T) {
	c := startController(t, newFlakyRepo(), nil)

	tiles := c.Tiles()
	tiles[0].Label = "mutated"

	diffTiles(t, "Tiles()", schema.DefaultTiles(), c.Tiles())
}

func TestOnChange(t *testing.T) {
	c := startController(t, newFlakyRepo(), nil)

	var (
		mu    sync.Mutex
		snaps []Snapshot
	)
	unsubscribe := c.OnChange(func(s Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	})

	if err := c.Save(context.Background(), []schema.Tile{{ID: "a", Label: "Mail"}}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	mu.Lock()
	if len(snaps) < 2 {
		mu.Unlock()
		t.Fatalf("got %d snapshots, want at least 2", len(snaps))
	}
	sawBusy := false
	for _, s := range snaps {
		sawBusy = sawBusy || s.Busy
	}
	last := snaps[len(snaps)-1]
	mu.Unlock()

	if !sawBusy {
		t.Error("no snapshot announced the save in flight")
	}
	if last.Busy || last.State != StateReady || last.LastUpdated == nil {
		t.Errorf("last snapshot = %+v", last)
	}
	diffTiles(t, "last snapshot tiles", []schema.Tile{{ID: "a", Label: "Mail"}}, last.Tiles)

	unsubscribe()
	unsubscribe()
	mu.Lock()
	count := len(snaps)
	mu.Unlock()
	c.DismissError()
	if err := c.Reset(context.Background()); err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(snaps) != count {
		t.Errorf("got %d deliveries after unsubscribe", len(snaps)-count)
	}
}

func TestSnapshot(t *testing.T) {
	r := newFlakyRepo()
	r.setFetchErr(errOffline)
	c := startController(t, r, nil)

	snap := c.Snapshot()
	if snap.State != StateReadyWithError {
		t.Errorf("State = %v, want ready_with_error", snap.State)
	}
	if snap.LastUpdated != nil {
		t.Errorf("LastUpdated = %v, want nil", snap.LastUpdated)
	}
	if !strings.Contains(snap.Error, "offline") {
		t.Errorf("Error = %q, want it to mention offline", snap.Error)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateLoading, "loading"},
		{StateReady, "ready"},
		{StateReadyWithError, "ready_with_error"},
		{State(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}

	text, err := StateReady.MarshalText()
	if err != nil || string(text) != "ready" {
		t.Errorf("MarshalText() = %q, %v", text, err)
	}
}

func TestStop_Idempotent(t *testing.T) {
	c := New(newFlakyRepo(), quietConfig())
	c.Stop()
	c.Stop()
}

func TestStop_EndsRefetching(t *testing.T) {
	r := newFlakyRepo()
	c := New(r, quietConfig())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	c.Stop()

	if err := r.Memory.ReplaceAll(context.Background(), []schema.Tile{{ID: "late"}}); err != nil {
		t.Fatalf("ReplaceAll() failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	diffTiles(t, "Tiles()", schema.DefaultTiles(), c.Tiles())
}

func TestStateUnmarshalText(t *testing.T) {
	var s State
	if err := s.UnmarshalText([]byte("ready_with_error")); err != nil {
		t.Fatalf("UnmarshalText() failed: %v", err)
	}
	if s != StateReadyWithError {
		t.Errorf("UnmarshalText() = %v, want ready_with_error", s)
	}
	if err := s.UnmarshalText([]byte("bogus")); err == nil {
		t.Error("UnmarshalText(bogus) succeeded")
	}
}

func TestRefreshOfOwnWriteKeepsLastUpdated(t *testing.T) {
	r := newFlakyRepo()
	stamp := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	cfg := quietConfig()
	cfg.Now = func() time.Time { return stamp }
	c := startController(t, r, cfg)

	if err := c.Save(context.Background(), []schema.Tile{{ID: "a", Label: "Mail"}}); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() failed: %v", err)
	}
	if !c.LastUpdated().Equal(stamp) {
		t.Errorf("LastUpdated() = %v, want %v", c.LastUpdated(), stamp)
	}

	if err := c.Reset(context.Background()); err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() failed: %v", err)
	}
	if !c.LastUpdated().IsZero() {
		t.Errorf("refresh after reset restored LastUpdated() = %v", c.LastUpdated())
	}
}

func TestSpuriousNotificationIsNoOp(t *testing.T) {
	r := newFlakyRepo()
	c := startController(t, r, nil)
	before := c.LastUpdated()

	var deliveries atomic.Int32
	defer c.OnChange(func(Snapshot) { deliveries.Add(1) })()

	r.Touch()
	time.Sleep(50 * time.Millisecond)

	diffTiles(t, "Tiles()", schema.DefaultTiles(), c.Tiles())
	if !c.LastUpdated().Equal(before) {
		t.Errorf("LastUpdated() = %v, want %v", c.LastUpdated(), before)
	}
	if n := deliveries.Load(); n != 0 {
		t.Errorf("identical refetch delivered %d snapshots", n)
	}
}
