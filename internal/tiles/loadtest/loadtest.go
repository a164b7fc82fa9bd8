// Package loadtest exercises the tile store the way a busy dashboard does:
// many viewers refetching the full set while an admin keeps saving.
//
// Every fetch is checked against the sets that were ever written. A reader
// must always see exactly one complete generation, never an empty table or
// a mix of two saves.
package loadtest

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/mschirtzinger/tileboard/internal/tiles/schema"
)

// Store is the part of the tile repository the load test drives.
type Store interface {
	FetchAll(ctx context.Context) ([]schema.Tile, error)
	ReplaceAll(ctx context.Context, tiles []schema.Tile) error
}

// Options controls a run.
type Options struct {
	Viewers  int           // Concurrent readers
	Tiles    int           // Tiles per generation
	Duration time.Duration // How long to keep saving
	Interval time.Duration // Pause between saves
	Seed     int64         // Generation content seed
}

// DefaultOptions returns a modest run suitable for CI.
func DefaultOptions() Options {
	return Options{
		Viewers:  20,
		Tiles:    12,
		Duration: 2 * time.Second,
		Interval: 5 * time.Millisecond,
		Seed:     42,
	}
}

// LatencyStats captures fetch latency across all viewers.
type LatencyStats struct {
	Min          time.Duration
	Max          time.Duration
	Mean         time.Duration
	P50          time.Duration
	P95          time.Duration
	P99          time.Duration
	TotalQueries int
}

// Report is the outcome of a run.
type Report struct {
	Fetch       LatencyStats
	Saves       int
	Errors      int
	Torn        int // Fetches that matched no written generation
	Empty       int // Fetches that returned no tiles
	Generations int // Distinct generations viewers observed
}

// OK reports whether every fetch saw a complete generation.
func (r *Report) OK() bool {
	return r.Errors == 0 && r.Torn == 0 && r.Empty == 0
}

// Generation builds the n-th tile set. Each generation has the same
// length with ids and labels tagged by n, and a shuffled order.
func Generation(n, size int, seed int64) []schema.Tile {
	rng := rand.New(rand.NewSource(seed + int64(n)))
	tiles := make([]schema.Tile, size)
	icons := schema.Icons()
	for i := range tiles {
		tiles[i] = schema.Tile{
			ID:          fmt.Sprintf("g%d-t%02d", n, i),
			Label:       fmt.Sprintf("Tile %d", i),
			URL:         fmt.Sprintf("https://app%d.example.com", i),
			Icon:        icons[rng.Intn(len(icons))],
			Description: fmt.Sprintf("generation %d", n),
		}
	}
	rng.Shuffle(len(tiles), func(i, j int) { tiles[i], tiles[j] = tiles[j], tiles[i] })
	return tiles
}

// fingerprint identifies a tile set by its ordered ids.
func fingerprint(tiles []schema.Tile) string {
	return strings.Join(schema.IDs(tiles), ",")
}

// Run seeds the store with generation 0 and then saves a new generation
// every opts.Interval until opts.Duration elapses or ctx is cancelled,
// while opts.Viewers goroutines fetch continuously.
func Run(ctx context.Context, store Store, opts Options) (*Report, error) {
	if opts.Viewers <= 0 || opts.Tiles <= 0 || opts.Duration <= 0 {
		return nil, fmt.Errorf("viewers, tiles and duration must be positive")
	}

	var (
		mu      sync.RWMutex
		written = map[string]int{}
	)
	record := func(n int, tiles []schema.Tile) {
		mu.Lock()
		written[fingerprint(tiles)] = n
		mu.Unlock()
	}

	first := Generation(0, opts.Tiles, opts.Seed)
	record(0, first)
	if err := store.ReplaceAll(ctx, first); err != nil {
		return nil, fmt.Errorf("failed to seed store: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, opts.Duration)
	defer cancel()

	report := &Report{}
	var (
		wg        sync.WaitGroup
		resultsMu sync.Mutex
		durations []time.Duration
		seen      = map[int]bool{}
	)

	for i := 0; i < opts.Viewers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]time.Duration, 0, 256)
			var errs, torn, empty int
			gens := map[int]bool{}

			for runCtx.Err() == nil {
				start := time.Now()
				tiles, err := store.FetchAll(runCtx)
				elapsed := time.Since(start)
				if err != nil {
					if runCtx.Err() == nil {
						errs++
					}
					continue
				}
				local = append(local, elapsed)

				if len(tiles) == 0 {
					empty++
					continue
				}
				// Generations are recorded before they are written, so
				// any complete set a viewer reads is already known.
				mu.RLock()
				n, ok := written[fingerprint(tiles)]
				mu.RUnlock()
				if !ok {
					torn++
					continue
				}
				gens[n] = true
			}

			resultsMu.Lock()
			durations = append(durations, local...)
			report.Errors += errs
			report.Torn += torn
			report.Empty += empty
			for n := range gens {
				seen[n] = true
			}
			resultsMu.Unlock()
		}()
	}

	saveErr := func() error {
		ticker := time.NewTicker(opts.Interval)
		defer ticker.Stop()
		for n := 1; ; n++ {
			select {
			case <-runCtx.Done():
				return nil
			case <-ticker.C:
			}
			next := Generation(n, opts.Tiles, opts.Seed)
			record(n, next)
			if err := store.ReplaceAll(runCtx, next); err != nil {
				if runCtx.Err() != nil {
					return nil
				}
				return fmt.Errorf("save %d failed: %w", n, err)
			}
			report.Saves++
		}
	}()

	cancel()
	wg.Wait()

	if saveErr != nil {
		return report, saveErr
	}
	if len(durations) == 0 {
		return report, fmt.Errorf("no successful fetches completed")
	}
	report.Fetch = computeLatencyStats(durations)
	report.Generations = len(seen)
	return report, nil
}

// computeLatencyStats calculates statistics from a slice of durations.
func computeLatencyStats(durations []time.Duration) LatencyStats {
	if len(durations) == 0 {
		return LatencyStats{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return LatencyStats{
		Min:          sorted[0],
		Max:          sorted[len(sorted)-1],
		Mean:         sum / time.Duration(len(sorted)),
		P50:          sorted[len(sorted)*50/100],
		P95:          sorted[len(sorted)*95/100],
		P99:          sorted[len(sorted)*99/100],
		TotalQueries: len(sorted),
	}
}
