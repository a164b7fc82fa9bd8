package schema

import "sort"

// DefaultIcon is drawn for new tiles and for tiles whose icon is not recognised.
const DefaultIcon = "app"

// icons is the fixed glyph vocabulary the display layer knows how to draw.
var icons = map[string]struct{}{
	"app":      {},
	"book":     {},
	"calendar": {},
	"chart":    {},
	"chat":     {},
	"cloud":    {},
	"code":     {},
	"database": {},
	"document": {},
	"folder":   {},
	"globe":    {},
	"link":     {},
	"mail":     {},
	"phone":    {},
	"settings": {},
	"shield":   {},
	"users":    {},
	"video":    {},
}

// IsKnownIcon reports whether name is part of the built-in vocabulary.
func IsKnownIcon(name string) bool {
	_, ok := icons[name]
	return ok
}

// Icons returns the vocabulary sorted by name.
func Icons() []string {
	names := make([]string, 0, len(icons))
	for name := range icons {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
