package edit

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Manager tracks the open sessions of the admin surface by id.
type Manager struct {
	source Source
	assets Assets
	opts   *Options

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager whose sessions copy from and commit to
// source. assets and opts are passed to every Open.
func NewManager(source Source, store Assets, opts *Options) *Manager {
	return &Manager{
		source:   source,
		assets:   store,
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Open starts a session and returns its id.
func (m *Manager) Open() (string, *Session) {
	id := uuid.NewString()
	s := Open(m.source, m.assets, m.opts)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return id, s
}

// Get returns an open session. Sessions closed by Commit are forgotten
// here and reported as not found.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: session %s", ErrSessionClosed, id)
	}
	if s.Closed() {
		delete(m.sessions, id)
		return nil, fmt.Errorf("%w: session %s", ErrSessionClosed, id)
	}
	return s, nil
}

// Discard discards and forgets a session. Unknown ids are ignored.
func (m *Manager) Discard(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		s.Discard()
	}
}

// Len returns the number of tracked sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// DiscardAll discards every session, used on shutdown.
func (m *Manager) DiscardAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Discard()
	}
}
