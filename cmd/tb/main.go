package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/tileboard/internal/config"
	"github.com/mschirtzinger/tileboard/internal/logging"
)

var (
	// Version is set at build time with -ldflags "-X main.Version=..."
	Version = "dev"

	cfgFile string
	v       = config.New()
	cfg     *config.Config
	logs    *logging.Factory
)

var rootCmd = &cobra.Command{
	Use:   "tb",
	Short: "Tileboard: a live dashboard of link tiles",
	Long: `Tileboard serves a grid of link tiles to every connected viewer and
pushes changes live as admins edit them.

Settings come from tileboard.yaml (./ or ~/.config/tileboard/), TILEBOARD_*
environment variables and flags, in increasing order of precedence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(v, cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded
		logs = logging.NewFactory(logging.Options{
			File:       cfg.LogFile,
			MaxSizeMB:  cfg.LogMaxSizeMB,
			MaxBackups: cfg.LogMaxBackups,
		})
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logs != nil {
			return logs.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "serve", Title: "Serving:"},
		&cobra.Group{ID: "tiles", Title: "Tile management:"},
	)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: tileboard.yaml in . or ~/.config/tileboard)")
	rootCmd.PersistentFlags().String("db", "", "Database path (default: data/tiles.db)")
	_ = v.BindPFlag(config.KeyDatabase, rootCmd.PersistentFlags().Lookup("db"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
