//go:build !wasm
// +build !wasm

package gorm

import "time"

// CredentialModel is the GORM model for a persisted credential entry
type CredentialModel struct {
	Namespace string    `gorm:"primaryKey;size:128"`
	Key       string    `gorm:"column:cred_key;primaryKey;size:255"`
	Value     []byte    `gorm:"not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (CredentialModel) TableName() string { return "stitch_credentials" }
