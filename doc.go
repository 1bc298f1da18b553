// Package stitch is a Go client for the Stitch backend-as-a-service platform.
//
// The package centers on AuthSession, which owns the session of one app client:
// who is logged in, through which provider, and with which tokens. Every call
// that needs a user goes through AuthSession.DoAuthenticatedRequest, which
// attaches the access token and, when the server reports an invalid session,
// refreshes the token and retries the call exactly once.
//
// # Basic Usage
//
//	registry := stitch.NewRegistry()
//	defer registry.Close()
//
//	client, err := registry.InitializeDefaultAppClient(ctx, "my-app-abcde", stitch.AppClientConfiguration{
//	    Storage: store, // e.g. a stores/fs.Store so the session survives restarts
//	})
//
//	user, err := client.Auth().Login(ctx, stitch.UserPasswordCredential{
//	    Username: "a@b.com",
//	    Password: "pw",
//	})
//
//	var sum int
//	err = client.CallFunction(ctx, "sum", []any{1, 2}, &sum)
//
// # Concurrency
//
// AuthSession is safe for concurrent use. Login, logout, link and refresh are
// serialized by a write lock that is held across their network calls; token
// reads take the read lock. Auth listeners are invoked after the lock is
// released.
//
// # Persistence
//
// After every mutation the session is written as one JSON record under
// "stitch.auth_info.<appID>" in the configured CredentialStore. A failed write
// does not fail the mutation; it is logged and reported to listeners as a
// PersistenceFailed event.
package stitch
