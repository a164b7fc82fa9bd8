package schema

import (
	"fmt"
	"net/url"
	"strings"
)

// MaxLabelLength bounds the label so tiles stay readable on the grid.
const MaxLabelLength = 200

// Tile represents a single shortcut entry on the dashboard.
type Tile struct {
	// ID is opaque, unique within the collection and immutable once created.
	ID string `json:"id" yaml:"id" toml:"id"`

	Label       string `json:"label" yaml:"label" toml:"label"`
	URL         string `json:"url" yaml:"url" toml:"url"`    // empty = unlinked tile
	Icon        string `json:"icon" yaml:"icon" toml:"icon"` // name from the built-in glyph vocabulary
	ImageURL    string `json:"imageUrl,omitempty" yaml:"imageUrl,omitempty" toml:"imageUrl,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
}

// Field names an editable tile attribute. ID is not editable.
type Field string

const (
	FieldLabel       Field = "label"
	FieldURL         Field = "url"
	FieldIcon        Field = "icon"
	FieldImageURL    Field = "imageUrl"
	FieldDescription Field = "description"
)

// ParseField converts a wire field name into a Field.
func ParseField(name string) (Field, error) {
	switch f := Field(name); f {
	case FieldLabel, FieldURL, FieldIcon, FieldImageURL, FieldDescription:
		return f, nil
	default:
		return "", fmt.Errorf("unknown tile field %q", name)
	}
}

// Set replaces the named field with value.
func (t *Tile) Set(field Field, value string) error {
	switch field {
	case FieldLabel:
		t.Label = value
	case FieldURL:
		t.URL = value
	case FieldIcon:
		t.Icon = value
	case FieldImageURL:
		t.ImageURL = value
	case FieldDescription:
		t.Description = value
	default:
		return fmt.Errorf("unknown tile field %q", field)
	}
	return nil
}

// Get returns the value of the named field.
func (t *Tile) Get(field Field) string {
	switch field {
	case FieldLabel:
		return t.Label
	case FieldURL:
		return t.URL
	case FieldIcon:
		return t.Icon
	case FieldImageURL:
		return t.ImageURL
	case FieldDescription:
		return t.Description
	}
	return ""
}

// Linked reports whether the tile navigates anywhere when clicked.
func (t *Tile) Linked() bool {
	return strings.TrimSpace(t.URL) != ""
}

// EffectiveIcon returns the glyph to draw when no custom image is shown.
func (t *Tile) EffectiveIcon() string {
	if IsKnownIcon(t.Icon) {
		return t.Icon
	}
	return DefaultIcon
}

// Validate checks if the Tile has valid field values.
//
// An empty label is tolerated; the admin panel is expected to nag about it
// but the store accepts it.
func (t *Tile) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("id is required")
	}
	if len(t.Label) > MaxLabelLength {
		return fmt.Errorf("label must be %d characters or less (got %d)", MaxLabelLength, len(t.Label))
	}
	if t.URL != "" {
		if _, err := url.Parse(t.URL); err != nil {
			return fmt.Errorf("url %q is invalid: %w", t.URL, err)
		}
	}
	if t.ImageURL != "" {
		if _, err := url.Parse(t.ImageURL); err != nil {
			return fmt.Errorf("imageUrl %q is invalid: %w", t.ImageURL, err)
		}
	}
	return nil
}

// ValidateAll validates every tile and checks that ids are unique.
func ValidateAll(tiles []Tile) error {
	seen := make(map[string]int, len(tiles))
	for i := range tiles {
		if err := tiles[i].Validate(); err != nil {
			return fmt.Errorf("tile %d: %w", i, err)
		}
		if prev, dup := seen[tiles[i].ID]; dup {
			return fmt.Errorf("duplicate id %q at positions %d and %d", tiles[i].ID, prev, i)
		}
		seen[tiles[i].ID] = i
	}
	return nil
}

// IndexOf returns the position of the tile with the given id, or -1.
func IndexOf(tiles []Tile, id string) int {
	for i := range tiles {
		if tiles[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy of tiles. A nil input yields an empty, non-nil slice
// so JSON encoding produces [] rather than null.
func Clone(tiles []Tile) []Tile {
	out := make([]Tile, len(tiles))
	copy(out, tiles)
	return out
}

// Equal reports whether a and b hold the same tiles in the same order.
func Equal(a, b []Tile) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// IDs returns the ids of tiles in order.
func IDs(tiles []Tile) []string {
	ids := make([]string, len(tiles))
	for i := range tiles {
		ids[i] = tiles[i].ID
	}
	return ids
}
