package credential

import (
	"context"
	"fmt"
	"sync"

	"callfence/pkg/platform/sentinel"
)

// InMemoryStore holds the credential in memory for tests and development.
// It does not survive restarts; production uses the Redis store.
type InMemoryStore struct {
	mu   sync.RWMutex
	cred *Credential
}

// NewInMemoryStore constructs an empty in-memory credential store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Save(_ context.Context, cred *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *cred
	s.cred = &copied
	return nil
}

func (s *InMemoryStore) Load(_ context.Context) (*Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cred == nil {
		return nil, fmt.Errorf("admin credential: %w", sentinel.ErrNotFound)
	}
	copied := *s.cred
	return &copied, nil
}
