package domcapture

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/antoinenguyen27/siren/pkg/logger"
)

var (
	// ErrSessionNotFound is returned when no capture session exists for a tab.
	ErrSessionNotFound = errors.New("capture session not found")
	// ErrSessionExists is returned when a tab already has an active session.
	ErrSessionExists = errors.New("capture session already active")
)

// Manager owns the capture sessions, one per tab.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session), now: time.Now}
}

// Start opens a session for tabID. A zero startedAt means now.
func (m *Manager) Start(ctx context.Context, tabID string, startedAt time.Time) (*Session, error) {
	if tabID == "" {
		return nil, errors.New("tab id is required")
	}
	if startedAt.IsZero() {
		startedAt = m.now()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[tabID]; ok {
		return nil, errors.Wrapf(ErrSessionExists, "tab %s", tabID)
	}
	s := newSession(tabID, startedAt, m.now)
	m.sessions[tabID] = s
	logger.G(ctx).WithField("tab_id", tabID).WithField("session_id", s.ID()).Info("dom capture started")
	return s, nil
}

// Get returns the active session for tabID.
func (m *Manager) Get(tabID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tabID]
	return s, ok
}

// Stop ends the session for tabID and returns its timeline.
func (m *Manager) Stop(ctx context.Context, tabID string) (Timeline, error) {
	s := m.take(tabID)
	if s == nil {
		return Timeline{}, errors.Wrapf(ErrSessionNotFound, "tab %s", tabID)
	}
	tl := s.Stop()
	logger.G(ctx).WithField("tab_id", tabID).
		WithField("events", len(tl.Events)).
		WithField("dropped", tl.TotalDropped()).
		Info("dom capture stopped")
	return tl, nil
}

// TabClosed tears down the session of a closed tab, discarding its events.
// It reports whether a session existed.
func (m *Manager) TabClosed(ctx context.Context, tabID string) bool {
	s := m.take(tabID)
	if s == nil {
		return false
	}
	s.Stop()
	logger.G(ctx).WithField("tab_id", tabID).Info("dom capture discarded for closed tab")
	return true
}

// Active returns the tab ids with an active session, sorted.
func (m *Manager) Active() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StopAll ends every session, discarding events.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Stop()
	}
}

func (m *Manager) take(tabID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tabID]
	if !ok {
		return nil
	}
	delete(m.sessions, tabID)
	return s
}
