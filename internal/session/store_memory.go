package session

import (
	"context"
	"sync"

	"github.com/f1v3nt5/poketroid/internal/models"
)

// NewMemoryStore returns a Store that keeps the session in process memory.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// MemoryStore implements Store for tests and short-lived processes.
type MemoryStore struct {
	mu      sync.RWMutex
	session *models.Session
}

// Load returns the stored session or ErrNoSession.
func (s *MemoryStore) Load(_ context.Context) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return models.Session{}, ErrNoSession
	}
	return *s.session, nil
}

// Save replaces the stored session.
func (s *MemoryStore) Save(_ context.Context, session models.Session) error {
	s.mu.Lock()
	s.session = &session
	s.mu.Unlock()
	return nil
}

// Clear removes the stored session.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.session = nil
	s.mu.Unlock()
	return nil
}

// Has reports whether a session is stored. Useful for tests.
func (s *MemoryStore) Has() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session != nil
}
