//go:build !wasm
// +build !wasm

// Package gae provides a Google Cloud Datastore implementation of
// stitch.CredentialStore. It suits clients running on Google Cloud Platform
// and supports multi-tenancy through Datastore namespaces.
//
// # Datastore Kinds
//
//   - StitchCredential: one entity per persisted key, keyed by name
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	store := gae.NewStore(client, "tenant-123")
//
// or let the package create the client:
//
//	store, _ := gae.NewStoreForProject(ctx, projectID, "", option.WithCredentialsFile(path))
package gae
