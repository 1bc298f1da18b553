package stitch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/panyam/stitch/stitchtest"
)

const testAppID = "test-app-abcde"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, baseURL string, opts ...AuthOption) *AuthSession {
	t.Helper()
	requests := NewRequestClient(baseURL, WithRequestLogger(discardLogger()))
	opts = append([]AuthOption{WithLogger(discardLogger())}, opts...)
	s, err := NewAuthSession(context.Background(), testAppID, requests, opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func newTestServer(t *testing.T) *stitchtest.Server {
	t.Helper()
	srv := stitchtest.NewServer(testAppID)
	t.Cleanup(srv.Close)
	return srv
}

func newTestAppClient(t *testing.T, srv *stitchtest.Server, store CredentialStore) *AppClient {
	t.Helper()
	client, err := NewAppClient(context.Background(), testAppID, AppClientConfiguration{
		BaseURL:          srv.URL,
		Storage:          store,
		DisableRefresher: true,
		Logger:           discardLogger(),
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

// eventRecorder collects auth events.
type eventRecorder struct {
	mu     sync.Mutex
	events []AuthEvent
}

func (r *eventRecorder) OnAuthEvent(e AuthEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) kinds() []AuthEventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AuthEventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

// failingStore fails every write.
type failingStore struct {
	MemoryCredentialStore
}

func (f *failingStore) Set(context.Context, string, []byte) error {
	return errors.New("disk full")
}

// roundTripFunc lets a test act as the transport.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }
