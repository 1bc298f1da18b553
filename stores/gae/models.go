//go:build !wasm
// +build !wasm

package gae

import (
	"time"

	"cloud.google.com/go/datastore"
)

// KindCredential is the Datastore kind of credential entities
const KindCredential = "StitchCredential"

// CredentialEntity is the Datastore entity for one persisted key
type CredentialEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	Value     []byte         `datastore:"value,noindex"`
	UpdatedAt time.Time      `datastore:"updated_at"`
}
