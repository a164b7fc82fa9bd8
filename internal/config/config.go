// Package config loads tileboard settings from a config file, the
// environment and command-line flags, in increasing order of precedence.
//
// The file is tileboard.yaml, searched in the working directory and then in
// $HOME/.config/tileboard. Every key can be overridden by an environment
// variable with the TILEBOARD_ prefix, e.g. TILEBOARD_PORT=9000 or
// TILEBOARD_ASSETS_DIR=/srv/tiles.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Keys understood by Load.
const (
	KeyPort          = "port"
	KeyDatabase      = "database"
	KeyAssetsDir     = "assets_dir"
	KeyAssetsBaseURL = "assets_base_url"
	KeyDefaultsFile  = "defaults_file"
	KeyLogFile       = "log_file"
	KeyLogMaxSizeMB  = "log_max_size_mb"
	KeyLogMaxBackups = "log_max_backups"
	KeyDebounce      = "debounce"
	KeyWatch         = "watch"
)

// EnvPrefix is prepended to every key to form its environment variable.
const EnvPrefix = "TILEBOARD"

// Config is the resolved configuration.
type Config struct {
	Port          int           `mapstructure:"port"`
	Database      string        `mapstructure:"database"`
	AssetsDir     string        `mapstructure:"assets_dir"`
	AssetsBaseURL string        `mapstructure:"assets_base_url"`
	DefaultsFile  string        `mapstructure:"defaults_file"`
	LogFile       string        `mapstructure:"log_file"`
	LogMaxSizeMB  int           `mapstructure:"log_max_size_mb"`
	LogMaxBackups int           `mapstructure:"log_max_backups"`
	Debounce      time.Duration `mapstructure:"debounce"`
	Watch         bool          `mapstructure:"watch"`

	// File is the config file that was read, empty if none.
	File string `mapstructure:"-"`
}

// New returns a viper instance with defaults, config search paths and
// environment binding set up. Flags can be bound to it before Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyPort, 8080)
	v.SetDefault(KeyDatabase, filepath.Join("data", "tiles.db"))
	v.SetDefault(KeyAssetsDir, filepath.Join("data", "assets"))
	v.SetDefault(KeyAssetsBaseURL, "/assets")
	v.SetDefault(KeyDefaultsFile, "")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyLogMaxSizeMB, 10)
	v.SetDefault(KeyLogMaxBackups, 3)
	v.SetDefault(KeyDebounce, 100*time.Millisecond)
	v.SetDefault(KeyWatch, true)

	v.SetConfigName("tileboard")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "tileboard"))
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the config file (explicit path, or the search path when
// empty) and returns the validated configuration. A missing file is not an
// error unless it was named explicitly.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535 (got %d)", c.Port)
	}
	if c.Database == "" {
		return fmt.Errorf("database path is required")
	}
	if c.AssetsDir == "" {
		return fmt.Errorf("assets directory is required")
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive (got %v)", c.Debounce)
	}
	if c.LogMaxSizeMB <= 0 {
		return fmt.Errorf("log_max_size_mb must be positive (got %d)", c.LogMaxSizeMB)
	}
	if c.LogMaxBackups < 0 {
		return fmt.Errorf("log_max_backups cannot be negative (got %d)", c.LogMaxBackups)
	}
	return nil
}
