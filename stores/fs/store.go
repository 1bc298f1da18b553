// Package fs provides a file system-based credential store for stitch clients.
package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/panyam/stitch"
)

var _ stitch.CredentialStore = (*Store)(nil)

// Store keeps every entry in one JSON file. Each Set and Remove rewrites the
// file atomically, so a crash never leaves a half-written session behind.
type Store struct {
	mu      sync.RWMutex
	path    string
	entries map[string][]byte
}

// storeFile is the JSON structure stored on disk
type storeFile struct {
	Entries map[string][]byte `json:"entries"`
}

// DefaultPath returns ~/.config/<appName>/credentials.json (or the platform equivalent).
func DefaultPath(appName string) (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("could not determine config directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}
	if appName == "" {
		appName = "stitch"
	}
	return filepath.Join(configDir, appName, "credentials.json"), nil
}

// NewStore opens the store at path, loading existing entries if the file exists.
// If path is empty, DefaultPath(appName) is used.
func NewStore(path string, appName string) (*Store, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(appName); err != nil {
			return nil, err
		}
	}

	store := &Store{
		path:    path,
		entries: make(map[string][]byte),
	}
	if err := store.load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return store, nil
}

// load reads entries from disk
func (s *Store) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse credentials file: %w", err)
	}
	if file.Entries != nil {
		s.entries = file.Entries
	}
	return nil
}

// Get returns the value stored under key, or nil if there is none.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// Set stores value under key and flushes the file.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.entries[key]
	s.entries[key] = append([]byte(nil), value...)
	if err := s.saveLocked(); err != nil {
		if had {
			s.entries[key] = prev
		} else {
			delete(s.entries, key)
		}
		return err
	}
	return nil
}

// Remove deletes key and flushes the file. Removing a missing key is not an error.
func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.entries[key]
	if !had {
		return nil
	}
	delete(s.entries, key)
	if err := s.saveLocked(); err != nil {
		s.entries[key] = prev
		return err
	}
	return nil
}

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Path returns the path to the credentials file
func (s *Store) Path() string {
	return s.path
}

// saveLocked persists entries to disk. Caller must hold s.mu.
func (s *Store) saveLocked() error {
	// Ensure directory exists with restricted permissions
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(storeFile{Entries: s.entries}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize credentials: %w", err)
	}
	return writeAtomicFile(s.path, data, 0600)
}
