package stitch

import (
	"context"
	"sync"
)

// CredentialStore is a key-value store that persists session state between runs.
// Implementations live in stores/ (file system, GORM, Datastore, scs session,
// encrypted wrapper).
type CredentialStore interface {
	// Get returns the value for key.
	// Returns nil, nil if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any existing value.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
}

// MemoryCredentialStore keeps values in memory. It is the default store and
// loses everything when the process exits.
type MemoryCredentialStore struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{values: make(map[string][]byte)}
}

func (s *MemoryCredentialStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (s *MemoryCredentialStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = append([]byte(nil), value...)
	return nil
}

func (s *MemoryCredentialStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}
