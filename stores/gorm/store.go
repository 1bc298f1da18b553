//go:build !wasm
// +build !wasm

package gorm

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/panyam/stitch"
)

var _ stitch.CredentialStore = (*Store)(nil)

// AutoMigrate runs database migrations for the credential table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&CredentialModel{})
}

// Store implements stitch.CredentialStore using GORM. Entries are scoped by
// namespace so several hosts can share one table.
type Store struct {
	db        *gorm.DB
	namespace string
}

// NewStore creates a new GORM-backed credential store
func NewStore(db *gorm.DB, namespace string) *Store {
	return &Store{db: db, namespace: namespace}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var model CredentialModel
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND cred_key = ?", s.namespace, key).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load credential %s: %w", key, err)
	}
	return model.Value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	model := &CredentialModel{Namespace: s.namespace, Key: key, Value: value}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "cred_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(model).Error
	if err != nil {
		return fmt.Errorf("failed to save credential %s: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND cred_key = ?", s.namespace, key).
		Delete(&CredentialModel{}).Error
	if err != nil {
		return fmt.Errorf("failed to remove credential %s: %w", key, err)
	}
	return nil
}

// Keys returns the keys stored in the store's namespace.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).Model(&CredentialModel{}).
		Where("namespace = ?", s.namespace).
		Order("cred_key").
		Pluck("cred_key", &keys).Error
	return keys, err
}
