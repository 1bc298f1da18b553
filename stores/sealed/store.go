// Package sealed wraps a stitch.CredentialStore so that values are encrypted
// at rest. Keys stay in the clear; values are sealed with NaCl secretbox under
// a key derived from a passphrase with Argon2id.
package sealed

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/panyam/stitch"
)

const (
	saltLength  = 16
	nonceLength = 24
	keyLength   = 32

	iterations  = 2
	memory      = 19 * 1024
	parallelism = 1

	version byte = 1
)

// ErrSealBroken is returned when a stored value cannot be opened: it was
// written with another passphrase, or it has been tampered with.
var ErrSealBroken = errors.New("sealed: value cannot be opened")

var _ stitch.CredentialStore = (*Store)(nil)

// Store encrypts values before handing them to the wrapped store.
type Store struct {
	inner      stitch.CredentialStore
	passphrase []byte

	// salt and key seal new values. key is derived on first use. A value sealed
	// under another salt that opens successfully becomes the new salt.
	mu   sync.Mutex
	salt []byte
	key  *[keyLength]byte
}

// New wraps inner. Values written through the returned store can only be read
// back with the same passphrase.
func New(inner stitch.CredentialStore, passphrase string) (*Store, error) {
	if passphrase == "" {
		return nil, errors.New("sealed: passphrase must not be empty")
	}
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return &Store{
		inner:      inner,
		passphrase: []byte(passphrase),
		salt:       salt,
	}, nil
}

func (s *Store) deriveKey(salt []byte) *[keyLength]byte {
	var k [keyLength]byte
	copy(k[:], argon2.IDKey(s.passphrase, salt, iterations, memory, parallelism, keyLength))
	return &k
}

// sealingKey returns the salt and key new values are sealed with.
func (s *Store) sealingKey() ([]byte, *[keyLength]byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.key == nil {
		s.key = s.deriveKey(s.salt)
	}
	return s.salt, s.key
}

// seal returns version | salt | nonce | secretbox(value).
func (s *Store) seal(value []byte) ([]byte, error) {
	var nonce [nonceLength]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	salt, key := s.sealingKey()
	out := make([]byte, 0, 1+saltLength+nonceLength+len(value)+secretbox.Overhead)
	out = append(out, version)
	out = append(out, salt...)
	out = append(out, nonce[:]...)
	return secretbox.Seal(out, value, &nonce, key), nil
}

func (s *Store) open(data []byte) ([]byte, error) {
	if len(data) < 1+saltLength+nonceLength+secretbox.Overhead || data[0] != version {
		return nil, ErrSealBroken
	}
	salt := data[1 : 1+saltLength]
	var nonce [nonceLength]byte
	copy(nonce[:], data[1+saltLength:1+saltLength+nonceLength])

	s.mu.Lock()
	var key *[keyLength]byte
	if s.key != nil && bytes.Equal(salt, s.salt) {
		key = s.key
	}
	s.mu.Unlock()
	adopt := key == nil
	if adopt {
		key = s.deriveKey(salt)
	}

	plain, ok := secretbox.Open(nil, data[1+saltLength+nonceLength:], &nonce, key)
	if !ok {
		return nil, ErrSealBroken
	}
	if adopt {
		s.mu.Lock()
		s.salt = append([]byte(nil), salt...)
		s.key = key
		s.mu.Unlock()
	}
	return plain, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.inner.Get(ctx, key)
	if err != nil || data == nil {
		return nil, err
	}
	return s.open(data)
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	data, err := s.seal(value)
	if err != nil {
		return err
	}
	return s.inner.Set(ctx, key, data)
}

func (s *Store) Remove(ctx context.Context, key string) error {
	return s.inner.Remove(ctx, key)
}
