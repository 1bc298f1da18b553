package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/stitch"
	"github.com/panyam/stitch/stitchtest"
)

func TestStore_GetSetRemove(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.json")

	store, err := NewStore(path, "")
	require.NoError(t, err)

	// Initially empty
	v, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, store.Set(ctx, "k", []byte(`{"user_id":"u1"}`)))
	v, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, `{"user_id":"u1"}`, string(v))

	require.NoError(t, store.Remove(ctx, "k"))
	require.NoError(t, store.Remove(ctx, "k"))
	v, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestStore_Persistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")

	store, err := NewStore(path, "")
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "a", []byte("one")))
	require.NoError(t, store.Set(ctx, "b", []byte("two")))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	reopened, err := NewStore(path, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, reopened.Keys())
	v, err := reopened.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "two", string(v))
}

func TestStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0600))

	_, err := NewStore(path, "")
	assert.Error(t, err)
}

func TestStore_DefaultPath(t *testing.T) {
	path, err := DefaultPath("myapp")
	require.NoError(t, err)
	assert.Equal(t, "credentials.json", filepath.Base(path))
	assert.Equal(t, "myapp", filepath.Base(filepath.Dir(path)))
}

func TestStore_SessionSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	srv := stitchtest.NewServer("fs-app")
	defer srv.Close()
	path := filepath.Join(t.TempDir(), "credentials.json")

	open := func() *stitch.AppClient {
		store, err := NewStore(path, "")
		require.NoError(t, err)
		client, err := stitch.NewAppClient(ctx, "fs-app", stitch.AppClientConfiguration{
			BaseURL:          srv.URL,
			Storage:          store,
			DisableRefresher: true,
		})
		require.NoError(t, err)
		return client
	}

	first := open()
	u, err := first.Auth().Login(ctx, stitch.AnonymousCredential{})
	require.NoError(t, err)
	first.Close()

	second := open()
	defer second.Close()
	require.True(t, second.Auth().IsLoggedIn())
	assert.Equal(t, u.ID, second.Auth().CurrentUser().ID)

	var out string
	require.NoError(t, second.CallFunction(ctx, "echo", []any{"restored"}, &out))
	assert.Equal(t, "restored", out)
}
