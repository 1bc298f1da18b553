//go:build !wasm
// +build !wasm

// Package gorm provides a GORM-based stitch.CredentialStore.
// It supports any database that GORM supports (PostgreSQL, MySQL, SQLite, etc.)
// and suits services that run many app clients against one shared database.
//
// # Database Schema
//
// AutoMigrate creates a single table:
//   - stitch_credentials: one row per persisted key (namespace, key, value)
//
// # Usage
//
//	db, _ := gorm.Open(postgres.Open(dsn), &gorm.Config{})
//	_ = gormstore.AutoMigrate(db)
//	store := gormstore.NewStore(db, "tenant-123")
//	client, _ := stitch.NewAppClient(ctx, appID, stitch.AppClientConfiguration{Storage: store})
package gorm
