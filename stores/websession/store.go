// Package websession stores stitch sessions inside the HTTP session of a web
// application, using an scs.SessionManager. Each visitor then has their own
// Stitch user, carried by the web session cookie.
//
// The context passed to the store (and therefore to NewAppClient, Login, Logout
// and friends) must be a request context that went through
// SessionManager.LoadAndSave.
//
//	sm := scs.New()
//	store := websession.NewStore(sm)
//	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
//	    client, _ := stitch.NewAppClient(r.Context(), appID, stitch.AppClientConfiguration{Storage: store})
//	    defer client.Close()
//	    ...
//	})
//	http.ListenAndServe(addr, sm.LoadAndSave(mux))
package websession

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexedwards/scs/v2"

	"github.com/panyam/stitch"
)

// ErrNoSession is returned when the context carries no loaded web session.
var ErrNoSession = errors.New("websession: no session data in context")

var _ stitch.CredentialStore = (*Store)(nil)

// Store implements stitch.CredentialStore on top of an scs session.
type Store struct {
	Session *scs.SessionManager
}

// NewStore creates a store backed by sm.
func NewStore(sm *scs.SessionManager) *Store {
	return &Store{Session: sm}
}

// guard turns the panic scs raises for a context without session data into ErrNoSession.
func guard(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%w: %v", ErrNoSession, r)
	}
}

func (s *Store) Get(ctx context.Context, key string) (value []byte, err error) {
	defer guard(&err)
	return s.Session.GetBytes(ctx, key), nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) (err error) {
	defer guard(&err)
	s.Session.Put(ctx, key, append([]byte(nil), value...))
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) (err error) {
	defer guard(&err)
	s.Session.Remove(ctx, key)
	return nil
}
