package credentials

import (
	"context"
	"sync"
)

// MemoryStore is a thread-safe in-memory implementation of the Store
// interface. It holds a single session record and keeps no history.
type MemoryStore struct {
	mu      sync.RWMutex
	session *Session
}

// NewMemoryStore creates an empty in-memory credential store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Get returns a copy of the current session, or nil when absent.
func (s *MemoryStore) Get(_ context.Context) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return nil, nil
	}

	// Copy to prevent external modifications
	session := *s.session
	return &session, nil
}

// Set replaces the stored session.
func (s *MemoryStore) Set(_ context.Context, session Session) error {
	if err := session.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = &session
	return nil
}

// Clear removes the stored session. Clearing an empty store is a no-op.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = nil
	return nil
}
