package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mschirtzinger/tileboard/internal/tiles/migrate"
	"github.com/mschirtzinger/tileboard/internal/tiles/repo"
	"github.com/mschirtzinger/tileboard/internal/tiles/schema"
	tilesync "github.com/mschirtzinger/tileboard/internal/tiles/sync"
	"github.com/mschirtzinger/tileboard/internal/ui"
)

var tilesCmd = &cobra.Command{
	Use:     "tiles",
	GroupID: "tiles",
	Short:   "Inspect and manage the stored tiles",
	Long: `Work with the tile store directly, without a running server.

A running 'tb serve' on the same database picks up every change made here
and pushes it to connected viewers.`,
}

var tilesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tiles in display order",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		tiles, err := store.FetchAll(cmd.Context())
		if err != nil {
			return err
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(tiles)
		}

		if len(tiles) == 0 {
			fmt.Println(ui.RenderMuted("No tiles stored. 'tb serve' seeds the defaults on first start."))
			return nil
		}
		fmt.Print(renderTiles(tiles))

		if updated, err := store.LastUpdated(cmd.Context()); err == nil && !updated.IsZero() {
			fmt.Printf("\nLast updated %s\n", ui.RenderMuted(updated.Local().Format("2006-01-02 15:04:05")))
		}
		return nil
	},
}

var tilesResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Replace every stored tile with the default set",
	Long: `Replace the stored tiles with the default set (the built-in one, or
defaults_file when configured). Uploaded images are left in the assets
directory.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")

		defaults, err := loadDefaults()
		if err != nil {
			return err
		}

		if !yes {
			ok, err := confirm(fmt.Sprintf("Replace all tiles with the %d defaults?", len(defaults)))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("Reset cancelled")
				return nil
			}
		}

		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		ctrl := tilesync.New(store, &tilesync.Config{
			Defaults: defaults,
			Logger:   logs.Logger("sync"),
		})
		defer ctrl.Stop()
		if err := ctrl.Reset(cmd.Context()); err != nil {
			return err
		}

		fmt.Printf("%s Reset to %d default tiles\n", ui.RenderPass("✓"), len(defaults))
		return nil
	},
}

var tilesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Replace the stored tiles with the contents of a file",
	Long: `Import tiles from a .json, .jsonl, .yaml or .toml file. The whole set is
validated first; nothing is written if any tile is invalid.

YAML and TOML files list tiles under a top-level "tiles" key, the same
layout defaults_file uses.

Example usage:
  tb tiles import tiles.yaml
  tb tiles import tiles.json --backup    # Export the current set first
  tb tiles import tiles.jsonl --dry-run  # Validate only`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		backup, _ := cmd.Flags().GetBool("backup")

		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		result, err := migrate.Import(cmd.Context(), store, migrate.ImportOptions{
			From:   args[0],
			DryRun: dryRun,
			Backup: backup,
		})
		if err != nil {
			return err
		}

		if result.BackupCreated != "" {
			fmt.Printf("%s Backup written to %s\n", ui.RenderPass("✓"), result.BackupCreated)
		}
		if dryRun {
			fmt.Printf("%s %d tiles valid (dry run, nothing written)\n", ui.RenderAccent("→"), result.TilesRead)
			return nil
		}
		fmt.Printf("%s Imported %d tiles\n", ui.RenderPass("✓"), result.TilesRead)
		return nil
	},
}

var tilesExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Write the stored tiles to a file",
	Long: `Export the stored tiles in display order. The format follows the file
extension: .json (default), .jsonl, .yaml or .toml.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := migrate.Export(cmd.Context(), store, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s Exported %d tiles to %s\n", ui.RenderPass("✓"), n, args[0])
		return nil
	},
}

func init() {
	tilesListCmd.Flags().Bool("json", false, "Output JSON")
	tilesResetCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	tilesImportCmd.Flags().Bool("dry-run", false, "Validate the file without writing")
	tilesImportCmd.Flags().Bool("backup", false, "Export the current tiles next to the input file first")

	tilesCmd.AddCommand(tilesListCmd, tilesResetCmd, tilesImportCmd, tilesExportCmd)
	rootCmd.AddCommand(tilesCmd)
}

// openStore opens the configured database for a one-shot command. A CLI
// invocation never watches the database; a running server does.
func openStore(ctx context.Context) (*repo.SQLite, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := repo.Open(ctx, &repo.Config{
		Path:     cfg.Database,
		Debounce: cfg.Debounce,
		Logger:   logs.Logger("repo"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open tile store: %w", err)
	}
	return store, nil
}

var errNoTerminal = errors.New("no terminal for confirmation (use --yes)")

// confirm asks a yes/no question on the terminal.
func confirm(title string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, errNoTerminal
	}

	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Reset").
				Negative("Cancel").
				Value(&ok),
		),
	)
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return false, nil
		}
		return false, err
	}
	return ok, nil
}

var (
	idStyle    = lipgloss.NewStyle().Bold(true)
	labelWidth = 20
)

// renderTiles formats tiles as an aligned listing.
func renderTiles(tiles []schema.Tile) string {
	var b strings.Builder
	for i, t := range tiles {
		link := t.URL
		if !t.Linked() {
			link = ui.RenderMuted("(no link)")
		}
		visual := t.EffectiveIcon()
		if t.ImageURL != "" {
			visual = "image"
		}
		fmt.Fprintf(&b, "%2d. %s %-*s %s %s\n",
			i+1,
			idStyle.Render(t.ID),
			labelWidth, truncate(t.Label, labelWidth),
			ui.RenderAccent("["+visual+"]"),
			link,
		)
		if t.Description != "" {
			fmt.Fprintf(&b, "    %s\n", ui.RenderMuted(t.Description))
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
