package session

import (
	"context"
	"sync"

	"github.com/ashureev/incident-intake/internal/domain"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]domain.Session)}
}

// Load returns a copy of the stored session, or an idle one.
func (m *MemoryStore) Load(_ context.Context, id string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return domain.NewSession(id), nil
	}
	return &s, nil
}

// Save stores a copy of s. Idle sessions are dropped.
func (m *MemoryStore) Save(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.IsIdle() {
		delete(m.sessions, s.ID)
		return nil
	}
	m.sessions[s.ID] = *s
	return nil
}

// Reset forgets the session.
func (m *MemoryStore) Reset(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// Len returns the number of sessions with an intake in progress.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

var _ Store = (*MemoryStore)(nil)
