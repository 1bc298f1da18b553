//go:build !wasm
// +build !wasm

package gae

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/panyam/stitch"
)

var _ stitch.CredentialStore = (*Store)(nil)

// Store implements stitch.CredentialStore using Google Cloud Datastore
type Store struct {
	client    *datastore.Client
	namespace string
}

// NewStore creates a new Datastore-backed credential store
func NewStore(client *datastore.Client, namespace string) *Store {
	return &Store{client: client, namespace: namespace}
}

// NewStoreForProject creates the Datastore client for projectID and wraps it in a Store.
func NewStoreForProject(ctx context.Context, projectID, namespace string, opts ...option.ClientOption) (*Store, error) {
	client, err := datastore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create datastore client: %w", err)
	}
	return NewStore(client, namespace), nil
}

// Close closes the underlying Datastore client
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) namespacedKey(name string) *datastore.Key {
	key := datastore.NameKey(KindCredential, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var entity CredentialEntity
	if err := s.client.Get(ctx, s.namespacedKey(key), &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get credential %s: %w", key, err)
	}
	return entity.Value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	entity := &CredentialEntity{
		Key:       s.namespacedKey(key),
		Value:     value,
		UpdatedAt: time.Now(),
	}
	if _, err := s.client.Put(ctx, entity.Key, entity); err != nil {
		return fmt.Errorf("failed to save credential %s: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.Delete(ctx, s.namespacedKey(key)); err != nil {
		return fmt.Errorf("failed to delete credential %s: %w", key, err)
	}
	return nil
}

// Keys returns the names of all credential entities in the namespace.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	q := datastore.NewQuery(KindCredential).Namespace(s.namespace).KeysOnly()
	it := s.client.Run(ctx, q)
	var keys []string
	for {
		k, err := it.Next(nil)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list credentials: %w", err)
		}
		keys = append(keys, k.Name)
	}
	return keys, nil
}
