// ABOUTME: Mock SessionStore implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
)

// MockStore is an in-memory SessionStore implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	sessions map[string]*StudySession // keyed by "actorID:id"

	// SaveErr, when set, is returned by SaveSession instead of storing.
	SaveErr error
	// PingErr is returned by Ping.
	PingErr error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		sessions: make(map[string]*StudySession),
	}
}

func sessionKey(actorID, id string) string {
	return actorID + ":" + id
}

func copySession(s *StudySession) *StudySession {
	c := *s
	c.ClassesCovered = append([]string{}, s.ClassesCovered...)
	c.TopicsCovered = append([]string{}, s.TopicsCovered...)
	c.KeyConcepts = append([]string{}, s.KeyConcepts...)
	return &c
}

// SaveSession stores a new session.
func (m *MockStore) SaveSession(ctx context.Context, session *StudySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return m.SaveErr
	}
	key := sessionKey(session.ActorID, session.ID)
	if _, exists := m.sessions[key]; exists {
		return ErrDuplicateSession
	}
	m.sessions[key] = copySession(session)
	return nil
}

// GetSession retrieves a session.
func (m *MockStore) GetSession(ctx context.Context, actorID, id string) (*StudySession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionKey(actorID, id)]
	if !ok {
		return nil, ErrNotFound
	}
	return copySession(s), nil
}

// ListSessions returns the actor's sessions, newest first.
func (m *MockStore) ListSessions(ctx context.Context, actorID string, limit int) ([]*StudySession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*StudySession{}
	for _, s := range m.sessions {
		if s.ActorID == actorID {
			out = append(out, copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CompletedAt.Equal(out[j].CompletedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CompletedAt.After(out[j].CompletedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping returns PingErr.
func (m *MockStore) Ping(ctx context.Context) error {
	return m.PingErr
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}
