package store

import (
	"context"
	"errors"
	"sync"

	"github.com/restream-tools/restreamctl/internal/auth"
)

// MemoryTokenStore keeps the token record in process memory only. It backs
// sessions that must never touch disk and is the default store in tests.
type MemoryTokenStore struct {
	mu     sync.RWMutex
	record *auth.TokenRecord
}

// NewMemoryTokenStore creates an empty in-process store.
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

// Save replaces the stored record with a copy of record.
func (s *MemoryTokenStore) Save(_ context.Context, record *auth.TokenRecord) error {
	if record == nil || record.AccessToken == "" {
		return errors.New("token store: record must carry an access token")
	}
	copied := *record
	s.mu.Lock()
	s.record = &copied
	s.mu.Unlock()
	return nil
}

// Load returns a copy of the stored record, or nil when no session exists.
func (s *MemoryTokenStore) Load(_ context.Context) (*auth.TokenRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.record == nil {
		return nil, nil
	}
	copied := *s.record
	return &copied, nil
}

// Clear drops the stored record.
func (s *MemoryTokenStore) Clear(_ context.Context) error {
	s.mu.Lock()
	s.record = nil
	s.mu.Unlock()
	return nil
}
