package stitch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/stitch/stitchtest"
)

func TestRefresher_RefreshesNearExpiry(t *testing.T) {
	srv := newTestServer(t)
	srv.SetAccessTokenTTL(time.Minute)
	s := newTestSession(t, srv.URL)
	_, err := s.Login(context.Background(), AnonymousCredential{})
	require.NoError(t, err)
	before, _ := s.AccessToken()

	r := NewAccessTokenRefresher(s, time.Hour, RefreshThreshold, discardLogger())
	refreshed, err := r.CheckNow(context.Background())
	require.NoError(t, err)
	assert.True(t, refreshed)
	assert.Equal(t, 1, srv.Calls(stitchtest.RouteRefresh))

	after, _ := s.AccessToken()
	assert.NotEqual(t, before, after)
}

func TestRefresher_LeavesFreshTokenAlone(t *testing.T) {
	srv := newTestServer(t)
	srv.SetAccessTokenTTL(time.Hour)
	s := newTestSession(t, srv.URL)
	_, err := s.Login(context.Background(), AnonymousCredential{})
	require.NoError(t, err)

	r := NewAccessTokenRefresher(s, time.Hour, RefreshThreshold, discardLogger())
	refreshed, err := r.CheckNow(context.Background())
	require.NoError(t, err)
	assert.False(t, refreshed)
	assert.Equal(t, 0, srv.Calls(stitchtest.RouteRefresh))
}

func TestRefresher_LoggedOutIsNoop(t *testing.T) {
	srv := newTestServer(t)
	s := newTestSession(t, srv.URL)

	r := NewAccessTokenRefresher(s, time.Hour, RefreshThreshold, discardLogger())
	refreshed, err := r.CheckNow(context.Background())
	require.NoError(t, err)
	assert.False(t, refreshed)
}

func TestRefresher_BackgroundLoop(t *testing.T) {
	srv := newTestServer(t)
	srv.SetAccessTokenTTL(time.Minute)
	s := newTestSession(t, srv.URL)
	_, err := s.Login(context.Background(), AnonymousCredential{})
	require.NoError(t, err)

	r := NewAccessTokenRefresher(s, 20*time.Millisecond, RefreshThreshold, discardLogger())
	r.Start()
	r.Start()
	assert.Eventually(t, func() bool {
		return srv.Calls(stitchtest.RouteRefresh) > 0
	}, 2*time.Second, 10*time.Millisecond)
	r.Stop()
	r.Stop()

	calls := srv.Calls(stitchtest.RouteRefresh)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, calls, srv.Calls(stitchtest.RouteRefresh))
}

func TestTokenExpiry_Opaque(t *testing.T) {
	_, err := TokenExpiry("not-a-jwt")
	assert.Error(t, err)
}
