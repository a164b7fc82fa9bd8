package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mschirtzinger/tileboard/internal/config"
	"github.com/mschirtzinger/tileboard/internal/tiles/assets"
	"github.com/mschirtzinger/tileboard/internal/tiles/dashboard"
	"github.com/mschirtzinger/tileboard/internal/tiles/edit"
	"github.com/mschirtzinger/tileboard/internal/tiles/repo"
	"github.com/mschirtzinger/tileboard/internal/tiles/schema"
	tilesync "github.com/mschirtzinger/tileboard/internal/tiles/sync"
	"github.com/mschirtzinger/tileboard/internal/ui"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "serve",
	Short:   "Serve the tile dashboard over HTTP and WebSocket",
	Long: `Start the tileboard server.

Viewers fetch tiles from /api/tiles or subscribe on /ws to receive a full
snapshot whenever the tiles change. Admin edit sessions live under
/api/sessions and commit as one atomic replace. Uploaded images are served
under the assets base URL.

Changes made by other tb processes sharing the same database (for example
'tb tiles import') are picked up by watching the database files.

Example usage:
  tb serve                       # Start on the configured port (default 8080)
  tb serve --port 9000           # Start on a custom port
  tb serve --memory              # Keep tiles in memory only`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	serveCmd.Flags().Bool("memory", false, "Keep tiles in memory instead of the database")
	serveCmd.Flags().Bool("watch", true, "Watch the database for writes by other processes")
	_ = v.BindPFlag(config.KeyPort, serveCmd.Flags().Lookup("port"))
	_ = v.BindPFlag(config.KeyWatch, serveCmd.Flags().Lookup("watch"))

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	memory, _ := cmd.Flags().GetBool("memory")
	store, closeStore, err := openRepository(ctx, memory, cfg.Watch)
	if err != nil {
		return err
	}
	defer closeStore()

	defaults, err := loadDefaults()
	if err != nil {
		return err
	}

	ctrl := tilesync.New(store, &tilesync.Config{
		Defaults: defaults,
		Logger:   logs.Logger("sync"),
	})
	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("failed to start sync controller: %w", err)
	}
	defer ctrl.Stop()

	blobs, err := assets.NewDir(cfg.AssetsDir, cfg.AssetsBaseURL)
	if err != nil {
		return err
	}
	sessions := edit.NewManager(ctrl, blobs, &edit.Options{Logger: logs.Logger("edit")})

	server := dashboard.NewServer(ctrl, sessions, blobs, &dashboard.Config{
		Port:       cfg.Port,
		AssetsPath: assetsPath(cfg.AssetsBaseURL),
		Logger:     logs.Logger("dashboard"),
	})
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start dashboard: %w", err)
	}

	host := displayAddr(server.GetAddr())
	fmt.Printf("%s Tileboard serving on http://%s\n", ui.RenderPass("✓"), host)
	fmt.Printf("   WebSocket: ws://%s/ws\n", host)
	if memory {
		fmt.Printf("   Store: %s\n", ui.RenderWarn("in memory (not persisted)"))
	} else {
		fmt.Printf("   Store: %s\n", cfg.Database)
	}
	fmt.Printf("   Assets: %s\n", cfg.AssetsDir)
	if snap := ctrl.Snapshot(); snap.Error != "" {
		fmt.Printf("%s %s\n", ui.RenderWarn("⚠"), snap.Error)
	}
	fmt.Println("\nPress Ctrl+C to stop...")

	changes := make(chan tilesync.Snapshot, 1)
	unsubscribe := ctrl.OnChange(func(s tilesync.Snapshot) {
		select {
		case changes <- s:
		default:
		}
	})
	defer unsubscribe()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		fmt.Println("\nShutting down...")
		return server.Stop()
	})
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case snap := <-changes:
				if snap.Busy {
					continue
				}
				fmt.Printf("%s %s %d tiles (%s)\n",
					ui.RenderMuted(time.Now().Format("15:04:05")),
					ui.RenderAccent("↻"), len(snap.Tiles), snap.State)
			}
		}
	})

	return g.Wait()
}

// openRepository returns the configured tile repository and its closer.
func openRepository(ctx context.Context, memory, watch bool) (repo.Repository, func(), error) {
	if memory {
		mem := repo.NewMemory(cfg.Debounce)
		return mem, func() { _ = mem.Close() }, nil
	}

	store, err := repo.Open(ctx, &repo.Config{
		Path:     cfg.Database,
		Debounce: cfg.Debounce,
		Watch:    watch,
		Logger:   logs.Logger("repo"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open tile store: %w", err)
	}
	return store, func() { _ = store.Close() }, nil
}

// loadDefaults returns the configured default set, or the built-in one.
func loadDefaults() ([]schema.Tile, error) {
	if cfg.DefaultsFile == "" {
		return schema.DefaultTiles(), nil
	}
	return schema.LoadDefaults(cfg.DefaultsFile)
}

// assetsPath is the URL path images are served under. An absolute base
// URL (a CDN in front of this server) contributes only its path.
func assetsPath(baseURL string) string {
	u, err := url.Parse(baseURL)
	if err != nil || u.Path == "" || u.Path == "/" {
		return "/assets"
	}
	return u.Path
}

// displayAddr turns a listener address into something a browser can open.
// The bound port is used, so --port 0 shows the port actually picked.
func displayAddr(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return net.JoinHostPort("localhost", port)
}
