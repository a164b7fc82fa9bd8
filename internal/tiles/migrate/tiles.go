// Package migrate moves tile lists in and out of the store as files.
//
// Supported formats, picked by file extension:
//   - .json:  one JSON array of tiles (the display-layer shape)
//   - .jsonl: one tile object per line
//   - .yaml, .yml, .toml: a top-level "tiles" list, the defaults file layout
package migrate

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/mschirtzinger/tileboard/internal/tiles/schema"
)

// tileFile is the YAML/TOML document shape read by schema.LoadDefaults.
type tileFile struct {
	Tiles []schema.Tile `yaml:"tiles" toml:"tiles"`
}

// Format is a tile file encoding.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatYAML  Format = "yaml"
	FormatTOML  Format = "toml"
)

// FormatFor returns the format implied by path's extension. Unknown
// extensions are treated as JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return FormatJSONL
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

// Read decodes tiles from r. YAML and TOML are only readable from files;
// use ReadFile for them.
func Read(r io.Reader, format Format) ([]schema.Tile, error) {
	switch format {
	case FormatJSON:
		tiles := []schema.Tile{}
		if err := json.NewDecoder(r).Decode(&tiles); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
		return tiles, nil

	case FormatJSONL:
		tiles := []schema.Tile{}
		decoder := json.NewDecoder(bufio.NewReader(r))
		for line := 1; ; line++ {
			var tile schema.Tile
			if err := decoder.Decode(&tile); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, fmt.Errorf("invalid JSON at line %d: %w", line, err)
			}
			tiles = append(tiles, tile)
		}
		return tiles, nil

	default:
		return nil, fmt.Errorf("format %q cannot be read from a stream", format)
	}
}

// ReadFile reads and validates a tile file.
func ReadFile(path string) ([]schema.Tile, error) {
	format := FormatFor(path)
	if format == FormatYAML || format == FormatTOML {
		return schema.LoadDefaults(path)
	}

	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open tile file: %w", err)
	}
	defer file.Close()

	tiles, err := Read(file, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := schema.ValidateAll(tiles); err != nil {
		return nil, fmt.Errorf("invalid tiles in %s: %w", path, err)
	}
	return tiles, nil
}

// Write encodes tiles to w in format.
func Write(w io.Writer, tiles []schema.Tile, format Format) error {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(schema.Clone(tiles), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal tiles: %w", err)
		}
		data = append(data, '\n')
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write tiles: %w", err)
		}
		return nil

	case FormatJSONL:
		encoder := json.NewEncoder(w)
		for _, tile := range tiles {
			if err := encoder.Encode(tile); err != nil {
				return fmt.Errorf("failed to write tile %s: %w", tile.ID, err)
			}
		}
		return nil

	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(tileFile{Tiles: schema.Clone(tiles)}); err != nil {
			return fmt.Errorf("failed to write YAML: %w", err)
		}
		if err := encoder.Close(); err != nil {
			return fmt.Errorf("failed to write YAML: %w", err)
		}
		return nil

	case FormatTOML:
		if err := toml.NewEncoder(w).Encode(tileFile{Tiles: schema.Clone(tiles)}); err != nil {
			return fmt.Errorf("failed to write TOML: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("format %q cannot be written", format)
	}
}

// WriteFile writes tiles to path atomically via a temp file.
func WriteFile(path string, tiles []schema.Tile) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}

	if err := Write(file, tiles, FormatFor(path)); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Store is the part of the tile repository import and export need.
type Store interface {
	FetchAll(ctx context.Context) ([]schema.Tile, error)
	ReplaceAll(ctx context.Context, tiles []schema.Tile) error
}

// ImportOptions contains configuration for an import.
type ImportOptions struct {
	From   string // Input tile file
	DryRun bool   // Parse and validate without writing
	Backup bool   // Export the current tiles before replacing them
}

// ImportResult contains statistics about an import.
type ImportResult struct {
	TilesRead     int
	Replaced      bool
	BackupCreated string
}

// Import replaces the stored tiles with the contents of opts.From.
func Import(ctx context.Context, store Store, opts ImportOptions) (*ImportResult, error) {
	tiles, err := ReadFile(opts.From)
	if err != nil {
		return nil, err
	}
	result := &ImportResult{TilesRead: len(tiles)}
	if opts.DryRun {
		return result, nil
	}

	if opts.Backup {
		current, err := store.FetchAll(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to read tiles for backup: %w", err)
		}
		backupPath := strings.TrimSuffix(opts.From, filepath.Ext(opts.From)) +
			".backup." + time.Now().Format("20060102-150405") + ".json"
		if err := WriteFile(backupPath, current); err != nil {
			return nil, fmt.Errorf("failed to create backup: %w", err)
		}
		result.BackupCreated = backupPath
	}

	if err := store.ReplaceAll(ctx, tiles); err != nil {
		return result, fmt.Errorf("failed to replace tiles: %w", err)
	}
	result.Replaced = true
	return result, nil
}

// Export writes the stored tiles to path and returns how many were written.
func Export(ctx context.Context, store Store, path string) (int, error) {
	tiles, err := store.FetchAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read tiles: %w", err)
	}
	if err := WriteFile(path, tiles); err != nil {
		return 0, err
	}
	return len(tiles), nil
}
