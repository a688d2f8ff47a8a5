package attemptrepo

import (
	"errors"
	"sync"
)

// InMemoryRepo is a thread-safe in-memory implementation of the Repo interface
type InMemoryRepo struct {
	mu       sync.RWMutex
	attempts map[string]*Attempt
}

// NewInMemoryRepo creates a new in-memory attempt repository
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		attempts: make(map[string]*Attempt),
	}
}

// Upsert stores or replaces the pending attempt for a provider
func (r *InMemoryRepo) Upsert(provider string, attempt *Attempt) error {
	if provider == "" {
		return errors.New("provider cannot be empty")
	}
	if attempt == nil {
		return errors.New("attempt cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Create a copy to prevent external modifications
	copied := *attempt
	r.attempts[provider] = &copied

	return nil
}

// Get retrieves the pending attempt for a provider, or nil when none exists
func (r *InMemoryRepo) Get(provider string) (*Attempt, error) {
	if provider == "" {
		return nil, errors.New("provider cannot be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	attempt, exists := r.attempts[provider]
	if !exists {
		return nil, nil
	}

	// Return a copy to prevent external modifications
	copied := *attempt
	return &copied, nil
}

// Delete removes the pending attempt for a provider
func (r *InMemoryRepo) Delete(provider string) error {
	if provider == "" {
		return errors.New("provider cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.attempts, provider)
	return nil
}
