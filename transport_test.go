package stitch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/stitch/stitchtest"
)

// newDownstream returns a service that accepts a request only when the stitch
// server accepts its bearer token.
func newDownstream(t *testing.T, srv *stitchtest.Server) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	ds := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		check, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/client/v2.0/auth/profile", nil)
		check.Header.Set("Authorization", r.Header.Get("Authorization"))
		resp, err := http.DefaultClient.Do(check)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		w.Write(append([]byte("ok:"), body...))
	}))
	t.Cleanup(ds.Close)
	return ds, &hits
}

func TestAuthTransport_AttachesToken(t *testing.T) {
	srv := newTestServer(t)
	s := newTestSession(t, srv.URL)
	_, err := s.Login(context.Background(), AnonymousCredential{})
	require.NoError(t, err)
	ds, hits := newDownstream(t, srv)

	resp, err := s.HTTPClient(nil).Get(ds.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), hits.Load())
}

func TestAuthTransport_RetriesAfterRefresh(t *testing.T) {
	srv := newTestServer(t)
	s := newTestSession(t, srv.URL)
	_, err := s.Login(context.Background(), AnonymousCredential{})
	require.NoError(t, err)
	ds, hits := newDownstream(t, srv)
	srv.ExpireAccessTokens()

	resp, err := s.HTTPClient(nil).Post(ds.URL, "text/plain", strings.NewReader("payload"))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok:payload", string(body))
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, 1, srv.Calls(stitchtest.RouteRefresh))
}

func TestAuthTransport_GivesUpAfterOneRetry(t *testing.T) {
	srv := newTestServer(t)
	s := newTestSession(t, srv.URL)
	_, err := s.Login(context.Background(), AnonymousCredential{})
	require.NoError(t, err)

	var hits atomic.Int32
	ds := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ds.Close()

	resp, err := s.HTTPClient(nil).Get(ds.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(2), hits.Load())
}

func TestAuthTransport_LoggedOut(t *testing.T) {
	srv := newTestServer(t)
	s := newTestSession(t, srv.URL)

	_, err := s.HTTPClient(nil).Get(srv.URL)
	assert.ErrorIs(t, err, ErrMustAuthenticateFirst)
}
