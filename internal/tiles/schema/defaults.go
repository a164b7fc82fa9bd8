package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// builtinDefaults is the seed set written to an empty store and used as the
// in-memory fallback when the store cannot be reached.
var builtinDefaults = []Tile{
	{ID: "mail", Label: "Mail", URL: "https://outlook.office.com/mail", Icon: "mail", Description: "Company email"},
	{ID: "teams", Label: "Teams", URL: "https://teams.microsoft.com", Icon: "chat", Description: "Chat and meetings"},
	{ID: "calendar", Label: "Calendar", URL: "https://outlook.office.com/calendar", Icon: "calendar", Description: "Schedules and rooms"},
	{ID: "drive", Label: "Drive", URL: "https://drive.example.com", Icon: "folder", Description: "Shared documents"},
	{ID: "wiki", Label: "Wiki", URL: "https://wiki.example.com", Icon: "book", Description: "Internal knowledge base"},
	{ID: "helpdesk", Label: "Helpdesk", URL: "", Icon: "shield", Description: "Call extension 4357"},
}

// DefaultTiles returns a fresh copy of the built-in default set.
func DefaultTiles() []Tile {
	return Clone(builtinDefaults)
}

// defaultsFile is the on-disk shape of a defaults override file.
type defaultsFile struct {
	Tiles []Tile `json:"tiles" yaml:"tiles" toml:"tiles"`
}

// LoadDefaults reads a replacement default set from path.
//
// The format is picked from the extension: .yaml/.yml, .toml or .json.
// The loaded set must pass ValidateAll; an empty set is rejected since
// seeding an empty store with nothing would leave it empty forever.
func LoadDefaults(path string) ([]Tile, error) {
	// #nosec G304 - path comes from operator configuration
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read defaults file %s: %w", path, err)
	}

	var file defaultsFile
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&file)
	case ".toml":
		_, err = toml.Decode(string(data), &file)
	case ".json":
		err = json.Unmarshal(data, &file)
	default:
		return nil, fmt.Errorf("unsupported defaults file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse defaults file %s: %w", path, err)
	}

	if len(file.Tiles) == 0 {
		return nil, fmt.Errorf("defaults file %s contains no tiles", path)
	}
	for i := range file.Tiles {
		if file.Tiles[i].Icon == "" {
			file.Tiles[i].Icon = DefaultIcon
		}
	}
	if err := ValidateAll(file.Tiles); err != nil {
		return nil, fmt.Errorf("invalid defaults file %s: %w", path, err)
	}
	return file.Tiles, nil
}
