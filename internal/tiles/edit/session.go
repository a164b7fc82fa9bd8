// Package edit implements the admin editing session: a private working copy
// of the tile list that collects reorders, additions, deletions, field edits
// and image changes, then commits them as one replace.
//
// Nothing a session does reaches the store until Commit. Discarding a
// session leaves the canonical list exactly as it was.
package edit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/mschirtzinger/tileboard/internal/tiles/assets"
	"github.com/mschirtzinger/tileboard/internal/tiles/schema"
)

// MaxImageSize is the largest image AttachImage accepts (2 MiB).
const MaxImageSize = 2 << 20

// Errors returned by session operations. Check with errors.Is().
var (
	// ErrUploadTooLarge is returned by AttachImage for oversized images.
	// Nothing is uploaded.
	ErrUploadTooLarge = errors.New("image exceeds upload size limit")

	// ErrUploadInFlight is returned by Commit while an image is uploading.
	ErrUploadInFlight = errors.New("image upload in progress")

	// ErrSessionClosed is returned after Discard or a successful Commit.
	ErrSessionClosed = errors.New("edit session closed")

	// ErrCommitInFlight is returned by edits made while Commit is saving.
	// The working copy is unchanged.
	ErrCommitInFlight = errors.New("commit in progress")

	// ErrNotFound is returned when an operation names an unknown tile id.
	// The working copy is unchanged; callers treat it as a no-op.
	ErrNotFound = errors.New("tile not found")
)

// Source is the owner of the canonical list: the session copies from it on
// open and commits back to it.
type Source interface {
	Tiles() []schema.Tile
	Save(ctx context.Context, tiles []schema.Tile) error
}

// Assets is the asset store used for tile images.
type Assets interface {
	Upload(ctx context.Context, name string, data []byte, opts assets.UploadOptions) error
	PublicURL(name string) string
	NameFromURL(publicURL string) (string, bool)
	Delete(ctx context.Context, name string) error
}

// Options configures a Session.
type Options struct {
	// MaxImageSize caps AttachImage payloads (default: MaxImageSize)
	MaxImageSize int

	// Logger for session activity (default: stderr with [edit] prefix)
	Logger *log.Logger

	// Now is used for new tile ids and image names (default: time.Now)
	Now func() time.Time
}

func (o *Options) withDefaults() Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.MaxImageSize <= 0 {
		out.MaxImageSize = MaxImageSize
	}
	if out.Logger == nil {
		out.Logger = log.New(os.Stderr, "[edit] ", log.LstdFlags)
	}
	if out.Now == nil {
		out.Now = time.Now
	}
	return out
}

// Session is one admin's working copy. Methods are safe for concurrent use;
// image uploads run without holding the session lock.
type Session struct {
	source Source
	assets Assets
	opts   Options
	logger *log.Logger

	mu         sync.Mutex
	tiles      []schema.Tile
	drag       DragState
	uploading  map[string]int
	seq        int
	committing bool
	closed     bool
}

// Open starts a session on a deep copy of the source's current list.
// assets may be nil, in which case image operations fail with
// assets.ErrUnavailable (attach) or only clear the reference (detach).
func Open(source Source, store Assets, opts *Options) *Session {
	o := opts.withDefaults()
	return &Session{
		source:    source,
		assets:    store,
		opts:      o,
		logger:    o.Logger,
		tiles:     schema.Clone(source.Tiles()),
		drag:      IdleDrag,
		uploading: make(map[string]int),
	}
}

// Tiles returns a copy of the working copy.
func (s *Session) Tiles() []schema.Tile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return schema.Clone(s.tiles)
}

// writableLocked returns the error an edit gets in the current state.
func (s *Session) writableLocked() error {
	if s.closed {
		return ErrSessionClosed
	}
	if s.committing {
		return ErrCommitInFlight
	}
	return nil
}

// UpdateField sets one field of the tile with the given id.
//
// Returns ErrNotFound for an unknown id, and an error for fields that
// cannot be set (the id).
func (s *Session) UpdateField(id string, field schema.Field, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writableLocked(); err != nil {
		return err
	}
	i := schema.IndexOf(s.tiles, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.tiles[i].Set(field, value)
}

// AddTile appends a placeholder tile with a fresh id and returns it.
func (s *Session) AddTile() (schema.Tile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writableLocked(); err != nil {
		return schema.Tile{}, err
	}

	nano := s.opts.Now().UnixNano()
	id := fmt.Sprintf("tile-%d", nano)
	for schema.IndexOf(s.tiles, id) >= 0 {
		s.seq++
		id = fmt.Sprintf("tile-%d-%d", nano, s.seq)
	}

	tile := schema.Tile{
		ID:          id,
		Label:       "New App",
		Icon:        schema.DefaultIcon,
		Description: "Description",
	}
	s.tiles = append(s.tiles, tile)
	return tile, nil
}

// DeleteTile removes the tile with the given id. Confirmation is the
// caller's job.
//
// Returns ErrNotFound for an unknown id.
func (s *Session) DeleteTile(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writableLocked(); err != nil {
		return err
	}
	i := schema.IndexOf(s.tiles, id)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := make([]schema.Tile, 0, len(s.tiles)-1)
	next = append(next, s.tiles[:i]...)
	next = append(next, s.tiles[i+1:]...)
	s.tiles = next
	s.drag = IdleDrag
	return nil
}

// Reorder moves the tile at from to to. Out-of-range or equal indices are
// a no-op.
func (s *Session) Reorder(from, to int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writableLocked(); err != nil {
		return err
	}
	s.tiles = Reorder(s.tiles, from, to)
	return nil
}

// Drag returns the current drag gesture state.
func (s *Session) Drag() DragState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drag
}

// DragStart begins a drag gesture on the tile at index.
func (s *Session) DragStart(index int) (DragState, error) {
	return s.transition(func(d DragState) DragState { return d.Start(index) })
}

// DragOver records the tile currently hovered.
func (s *Session) DragOver(index int) (DragState, error) {
	return s.transition(func(d DragState) DragState { return d.Over(index) })
}

// DragCancel abandons the gesture without moving anything.
func (s *Session) DragCancel() (DragState, error) {
	return s.transition(func(d DragState) DragState { return d.Cancel() })
}

// Drop ends the gesture at index (negative: the last hovered tile) and
// applies the move. It reports whether the working copy changed.
func (s *Session) Drop(index int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writableLocked(); err != nil {
		return false, err
	}
	next, from, to, ok := s.drag.Drop(index)
	s.drag = next
	if !ok || to >= len(s.tiles) || from >= len(s.tiles) {
		return false, nil
	}
	s.tiles = Reorder(s.tiles, from, to)
	return true, nil
}

func (s *Session) transition(fn func(DragState) DragState) (DragState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writableLocked(); err != nil {
		return IdleDrag, err
	}
	s.drag = fn(s.drag)
	return s.drag, nil
}

// AttachImage uploads data as the custom image of tile id and points the
// tile's imageUrl at it.
//
// Oversized payloads fail with ErrUploadTooLarge before anything is sent.
// While the upload runs the tile counts as uploading and Commit is refused.
// On upload failure the tile is left unchanged.
func (s *Session) AttachImage(ctx context.Context, id, filename string, data []byte) (schema.Tile, error) {
	if len(data) > s.opts.MaxImageSize {
		return schema.Tile{}, fmt.Errorf("%w: %d bytes (limit %d)", ErrUploadTooLarge, len(data), s.opts.MaxImageSize)
	}

	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return schema.Tile{}, err
	}
	if schema.IndexOf(s.tiles, id) < 0 {
		s.mu.Unlock()
		return schema.Tile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if s.assets == nil {
		s.mu.Unlock()
		return schema.Tile{}, fmt.Errorf("failed to upload image: %w", assets.ErrUnavailable)
	}
	s.uploading[id]++
	s.mu.Unlock()

	name := assets.ObjectName(id, s.opts.Now(), filename)
	uploadErr := s.assets.Upload(ctx, name, data, assets.UploadOptions{Overwrite: true})

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.uploading[id]--; s.uploading[id] <= 0 {
		delete(s.uploading, id)
	}
	if uploadErr != nil {
		s.logger.Printf("Image upload for %s failed: %v", id, uploadErr)
		return schema.Tile{}, fmt.Errorf("failed to upload image: %w", uploadErr)
	}

	i := schema.IndexOf(s.tiles, id)
	if s.closed || i < 0 {
		s.deleteBlob(name)
		if s.closed {
			return schema.Tile{}, ErrSessionClosed
		}
		return schema.Tile{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	previous := s.tiles[i].ImageURL
	s.tiles[i].ImageURL = s.assets.PublicURL(name)
	s.logger.Printf("Attached image %s to %s (%d bytes)", name, id, len(data))

	// A replaced image goes the same way as a detached one.
	if old, ok := s.assets.NameFromURL(previous); ok && previous != "" && old != name {
		s.deleteBlob(old)
	}
	return s.tiles[i], nil
}

// deleteBlob removes a stored image in the background, best-effort.
func (s *Session) deleteBlob(name string) {
	go func() {
		if err := s.assets.Delete(context.Background(), name); err != nil {
			s.logger.Printf("Failed to delete image %s: %v", name, err)
		}
	}()
}

// DetachImage clears the custom image of tile id. Deleting the stored blob
// is best-effort: a failure is logged and the reference is cleared anyway.
// Images hosted elsewhere are never deleted.
func (s *Session) DetachImage(ctx context.Context, id string) error {
	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	i := schema.IndexOf(s.tiles, id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	// The reference goes first so no list saved from here on points at
	// the blob being deleted.
	imageURL := s.tiles[i].ImageURL
	s.tiles[i].ImageURL = ""
	s.mu.Unlock()

	if imageURL != "" && s.assets != nil {
		if name, ok := s.assets.NameFromURL(imageURL); ok {
			if err := s.assets.Delete(ctx, name); err != nil {
				s.logger.Printf("Failed to delete image %s for %s: %v", name, id, err)
			}
		}
	}
	return nil
}

// Uploading reports whether tile id has an upload in flight.
func (s *Session) Uploading(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploading[id] > 0
}

// UploadingIDs returns the ids with uploads in flight.
func (s *Session) UploadingIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.uploadingLocked()
}

func (s *Session) uploadingLocked() []string {
	ids := make([]string, 0, len(s.uploading))
	for _, t := range s.tiles {
		if s.uploading[t.ID] > 0 {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// CanCommit reports whether Commit would be attempted.
func (s *Session) CanCommit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && !s.committing && len(s.uploading) == 0
}

// Committing reports whether a Commit is saving right now.
func (s *Session) Committing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committing
}

// Closed reports whether the session has been discarded or committed.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Commit saves the working copy through the source and closes the session.
// Edits made while the save runs fail with ErrCommitInFlight. On failure
// the session stays open with its working copy intact.
func (s *Session) Commit(ctx context.Context) error {
	s.mu.Lock()
	if err := s.writableLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if len(s.uploading) > 0 {
		s.mu.Unlock()
		return ErrUploadInFlight
	}
	s.committing = true
	tiles := schema.Clone(s.tiles)
	s.mu.Unlock()

	err := s.source.Save(ctx, tiles)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.committing = false
	if err != nil {
		return fmt.Errorf("failed to commit session: %w", err)
	}
	s.closed = true
	s.tiles = nil
	s.drag = IdleDrag
	return nil
}

// Discard drops the working copy. The canonical list is untouched.
func (s *Session) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.tiles = nil
	s.drag = IdleDrag
}

// State is the JSON view of a session for the admin surface.
type State struct {
	ID        string        `json:"id,omitempty"`
	Tiles     []schema.Tile `json:"tiles"`
	Drag      DragState     `json:"drag"`
	Uploading []string      `json:"uploading"`
	CanCommit bool          `json:"canCommit"`
}

// State returns a snapshot of the session.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return State{
		Tiles:     schema.Clone(s.tiles),
		Drag:      s.drag,
		Uploading: s.uploadingLocked(),
		CanCommit: !s.closed && !s.committing && len(s.uploading) == 0,
	}
}
