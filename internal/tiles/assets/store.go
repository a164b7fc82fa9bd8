// Package assets stores uploaded tile images.
//
// The contract is small: put a named blob, turn a name into a
// publicly fetchable URL, delete a name. Blobs are kept in an afero
// filesystem, which is the OS filesystem rooted at the configured assets
// directory in production and an in-memory filesystem in tests.
package assets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Errors returned by asset operations. Check with errors.Is().
var (
	// ErrUnavailable is returned when the backing storage fails.
	ErrUnavailable = errors.New("asset store unavailable")

	// ErrExists is returned by Upload without Overwrite when the name is taken.
	ErrExists = errors.New("asset already exists")

	// ErrInvalidName is returned for empty names or names containing a path.
	ErrInvalidName = errors.New("invalid asset name")
)

// UploadOptions controls Upload behaviour.
type UploadOptions struct {
	// Overwrite replaces an existing blob with the same name.
	Overwrite bool
	// ContentType is recorded for logging only; the file server sniffs.
	ContentType string
}

// Client is what the edit session needs from an asset store.
type Client interface {
	Upload(ctx context.Context, name string, data []byte, opts UploadOptions) error
	PublicURL(name string) string
	Delete(ctx context.Context, name string) error
}

// Store is an afero-backed Client.
type Store struct {
	fs      afero.Fs
	baseURL string
}

var _ Client = (*Store)(nil)

// New returns a store over fs whose public URLs start with baseURL
// (for example "/assets" or "https://cdn.example.com/tiles").
func New(fs afero.Fs, baseURL string) *Store {
	return &Store{
		fs:      fs,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// NewDir returns a store rooted at dir on the OS filesystem, creating it.
func NewDir(dir, baseURL string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create assets directory: %w", err)
	}
	return New(afero.NewBasePathFs(afero.NewOsFs(), dir), baseURL), nil
}

// Upload writes data under name.
func (s *Store) Upload(ctx context.Context, name string, data []byte, opts UploadOptions) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !opts.Overwrite {
		exists, err := afero.Exists(s.fs, name)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrExists, name)
		}
	}

	if err := afero.WriteFile(s.fs, name, data, 0644); err != nil {
		return fmt.Errorf("%w: failed to write %s: %v", ErrUnavailable, name, err)
	}
	return nil
}

// PublicURL returns the URL the display layer fetches name from.
func (s *Store) PublicURL(name string) string {
	return s.baseURL + "/" + url.PathEscape(name)
}

// NameFromURL reverses PublicURL. It reports false for URLs this store did
// not produce (external image links), which must never be deleted.
func (s *Store) NameFromURL(publicURL string) (string, bool) {
	prefix := s.baseURL + "/"
	if !strings.HasPrefix(publicURL, prefix) {
		return "", false
	}
	name, err := url.PathUnescape(strings.TrimPrefix(publicURL, prefix))
	if err != nil || validateName(name) != nil {
		return "", false
	}
	return name, true
}

// Delete removes name. A missing blob is not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := s.fs.Remove(name); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: failed to delete %s: %v", ErrUnavailable, name, err)
	}
	return nil
}

// Exists reports whether name is stored.
func (s *Store) Exists(name string) bool {
	ok, err := afero.Exists(s.fs, name)
	return err == nil && ok
}

// Handler serves stored blobs. Mount it under the base URL path with the
// prefix stripped.
func (s *Store) Handler() http.Handler {
	return http.FileServer(afero.NewHttpFs(s.fs).Dir("/"))
}

// ObjectName builds a collision-resistant blob name from the tile id, the
// upload time and the original file's extension.
func ObjectName(tileID string, now time.Time, originalName string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return fmt.Sprintf("%s-%d%s", sanitize(tileID), now.UnixNano(), ext)
}

// sanitize keeps ids safe for use as a file name.
func sanitize(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "tile"
	}
	return b.String()
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || path.Clean(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
