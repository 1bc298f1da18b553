package main

import (
	"context"

	"github.com/pkg/errors"

	"github.com/panyam/stitch"
	"github.com/panyam/stitch/config"
	"github.com/panyam/stitch/stores/fs"
	"github.com/panyam/stitch/stores/gae"
	"github.com/panyam/stitch/stores/sealed"
)

// openStore builds the credential store selected by the config. The returned
// func releases it.
func openStore(ctx context.Context, cfg *config.Config) (stitch.CredentialStore, func() error, error) {
	var store stitch.CredentialStore
	closer := func() error { return nil }

	switch cfg.Storage.Backend {
	case config.StorageMemory:
		store = stitch.NewMemoryCredentialStore()
	case config.StorageFS:
		s, err := fs.NewStore(cfg.Storage.Path, "stitch")
		if err != nil {
			return nil, nil, errors.Wrap(err, "open credentials file")
		}
		store = s
	case config.StorageDatastore:
		s, err := gae.NewStoreForProject(ctx, cfg.Storage.ProjectID, cfg.Storage.Namespace)
		if err != nil {
			return nil, nil, err
		}
		store, closer = s, s.Close
	default:
		return nil, nil, errors.Errorf("unknown storage backend: %s", cfg.Storage.Backend)
	}

	if cfg.Storage.Passphrase != "" {
		s, err := sealed.New(store, cfg.Storage.Passphrase)
		if err != nil {
			closer()
			return nil, nil, err
		}
		store = s
	}
	return store, closer, nil
}
