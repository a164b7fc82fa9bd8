package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tileboard/internal/logging"
	"github.com/mschirtzinger/tileboard/internal/tiles/loadtest"
	"github.com/mschirtzinger/tileboard/internal/tiles/repo"
	"github.com/mschirtzinger/tileboard/internal/ui"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Load test the tile store with concurrent viewers and saves",
	Long: `Run viewers that refetch the full tile set in a loop while one writer
replaces it on an interval, and check that every fetch returned one complete
saved set.

The run uses a scratch database in a temporary directory; the configured
database is never touched.

Examples:
  tb bench                              # 20 viewers for 2s against SQLite
  tb bench --viewers 100 --duration 10s
  tb bench --store memory --json`,
	Run:     runBench,
	GroupID: "serve",
}

func init() {
	defaults := loadtest.DefaultOptions()
	benchCmd.Flags().Int("viewers", defaults.Viewers, "Number of concurrent viewers")
	benchCmd.Flags().Int("tiles", defaults.Tiles, "Tiles per saved set")
	benchCmd.Flags().Duration("duration", defaults.Duration, "How long to keep saving")
	benchCmd.Flags().Duration("interval", defaults.Interval, "Pause between saves")
	benchCmd.Flags().String("store", "sqlite", "Store to test: sqlite or memory")
	benchCmd.Flags().Bool("json", false, "Output results as JSON")
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) {
	opts := loadtest.DefaultOptions()
	opts.Viewers, _ = cmd.Flags().GetInt("viewers")
	opts.Tiles, _ = cmd.Flags().GetInt("tiles")
	opts.Duration, _ = cmd.Flags().GetDuration("duration")
	opts.Interval, _ = cmd.Flags().GetDuration("interval")
	kind, _ := cmd.Flags().GetString("store")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if opts.Viewers <= 0 || opts.Tiles <= 0 {
		fmt.Fprintf(os.Stderr, "Error: --viewers and --tiles must be positive\n")
		os.Exit(1)
	}
	if opts.Interval <= 0 {
		fmt.Fprintf(os.Stderr, "Error: --interval must be positive\n")
		os.Exit(1)
	}

	ok, err := bench(context.Background(), kind, opts, jsonOutput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if !ok {
		os.Exit(1)
	}
}

// bench runs the load test against a scratch store of the given kind and
// prints the report.
func bench(ctx context.Context, kind string, opts loadtest.Options, jsonOutput bool) (bool, error) {
	var store loadtest.Store
	switch kind {
	case "memory":
		mem := repo.NewMemory(cfg.Debounce)
		defer mem.Close()
		store = mem
	case "sqlite":
		dir, err := os.MkdirTemp("", "tb-bench-*")
		if err != nil {
			return false, fmt.Errorf("failed to create scratch directory: %w", err)
		}
		defer os.RemoveAll(dir)

		db, err := repo.Open(ctx, &repo.Config{
			Path:   filepath.Join(dir, "bench.db"),
			Logger: logging.Discard(),
		})
		if err != nil {
			return false, fmt.Errorf("failed to open scratch database: %w", err)
		}
		defer db.Close()
		store = db
	default:
		return false, fmt.Errorf("--store must be 'sqlite' or 'memory'")
	}

	if !jsonOutput {
		fmt.Printf("Running %d viewers against %s for %v...\n", opts.Viewers, kind, opts.Duration)
	}

	start := time.Now()
	report, err := loadtest.Run(ctx, store, opts)
	if err != nil {
		return false, err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	} else {
		printReport(report, time.Since(start))
	}
	return report.OK(), nil
}

func printReport(r *loadtest.Report, elapsed time.Duration) {
	f := r.Fetch
	fmt.Printf("\n%s\n", ui.RenderHeader("Fetch latency"))
	fmt.Printf("  Fetches: %d (%.0f/s)\n", f.TotalQueries, float64(f.TotalQueries)/elapsed.Seconds())
	fmt.Printf("  Min:     %v\n", f.Min)
	fmt.Printf("  P50:     %v\n", f.P50)
	fmt.Printf("  Mean:    %v\n", f.Mean)
	fmt.Printf("  P95:     %v\n", f.P95)
	fmt.Printf("  P99:     %v\n", f.P99)
	fmt.Printf("  Max:     %v\n", f.Max)

	fmt.Printf("\n%s\n", ui.RenderHeader("Consistency"))
	fmt.Printf("  Saves:               %d\n", r.Saves)
	fmt.Printf("  Generations seen:    %d\n", r.Generations)
	fmt.Printf("  Empty reads:         %d\n", r.Empty)
	fmt.Printf("  Partial reads:       %d\n", r.Torn)
	fmt.Printf("  Errors:              %d\n", r.Errors)

	if r.OK() {
		fmt.Printf("\n%s Every fetch saw one complete saved set\n", ui.RenderPass("✓"))
	} else {
		fmt.Printf("\n%s Inconsistent reads detected\n", ui.RenderFail("✗"))
	}
}
