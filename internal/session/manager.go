package session

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// session is the internal per-key conversation state.
type state struct {
	sourceIDs []uuid.UUID
	messages  []Message
}

// Manager stores chat histories keyed by source selection.
//
// Histories live in memory only; a restart clears them. Manager is safe
// for concurrent use by multiple goroutines.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*state
	logger   *slog.Logger
}

// NewManager creates an empty session manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*state),
		logger:   logger,
	}
}

// Append records one message under the session for sourceIDs and returns
// the session key. Histories are trimmed to MaxMessages.
func (m *Manager) Append(sourceIDs []uuid.UUID, role, content string) string {
	key := Key(sourceIDs)

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		s = &state{sourceIDs: slices.Clone(sourceIDs)}
		m.sessions[key] = s
	}

	s.messages = append(s.messages, Message{
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	})
	if len(s.messages) > MaxMessages {
		s.messages = s.messages[len(s.messages)-MaxMessages:]
	}
	return key
}

// History returns a copy of the messages for a source selection, oldest
// first. A selection with no history yields an empty slice.
func (m *Manager) History(sourceIDs []uuid.UUID) []Message {
	key := Key(sourceIDs)

	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[key]
	if !ok {
		return []Message{}
	}
	return slices.Clone(s.messages)
}

// Clear removes the history for a source selection.
func (m *Manager) Clear(sourceIDs []uuid.UUID) {
	key := Key(sourceIDs)

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
}

// InvalidateSource drops every session that could have retrieved from the
// given source: sessions whose selection contains it, and the all-sources
// session. Returns the number of sessions removed.
func (m *Manager) InvalidateSource(sourceID uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, s := range m.sessions {
		if key == AllSourcesKey || slices.Contains(s.sourceIDs, sourceID) {
			delete(m.sessions, key)
			removed++
		}
	}

	if removed > 0 {
		m.logger.Debug("invalidated sessions for deleted source",
			"source_id", sourceID, "sessions", removed)
	}
	return removed
}

// Len reports the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
