package sealed

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panyam/stitch"
)

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	inner := stitch.NewMemoryCredentialStore()
	store, err := New(inner, "correct horse")
	require.NoError(t, err)

	secret := []byte(`{"refresh_token":"r1"}`)
	require.NoError(t, store.Set(ctx, "k", secret))

	raw, err := inner.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, bytes.Contains(raw, []byte("r1")), "value must not be stored in the clear")

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, secret, got)

	missing, err := store.Get(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, store.Remove(ctx, "k"))
	got, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_ReopenWithSamePassphrase(t *testing.T) {
	ctx := context.Background()
	inner := stitch.NewMemoryCredentialStore()
	first, err := New(inner, "pw")
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "k", []byte("value")))

	second, err := New(inner, "pw")
	require.NoError(t, err)
	got, err := second.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "value", string(got))
}

func TestStore_WrongPassphrase(t *testing.T) {
	ctx := context.Background()
	inner := stitch.NewMemoryCredentialStore()
	first, err := New(inner, "pw")
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "k", []byte("value")))

	other, err := New(inner, "not-pw")
	require.NoError(t, err)
	_, err = other.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrSealBroken)
}

func TestStore_Tampered(t *testing.T) {
	ctx := context.Background()
	inner := stitch.NewMemoryCredentialStore()
	store, err := New(inner, "pw")
	require.NoError(t, err)
	require.NoError(t, store.Set(ctx, "k", []byte("value")))

	raw, _ := inner.Get(ctx, "k")
	raw[len(raw)-1] ^= 0xff
	require.NoError(t, inner.Set(ctx, "k", raw))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrSealBroken)

	require.NoError(t, inner.Set(ctx, "k", []byte("short")))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrSealBroken)
}

func TestStore_KeepsOneKey(t *testing.T) {
	ctx := context.Background()
	inner := stitch.NewMemoryCredentialStore()
	first, err := New(inner, "pw")
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "k", []byte("value")))
	raw, _ := inner.Get(ctx, "k")

	second, err := New(inner, "pw")
	require.NoError(t, err)
	_, err = second.Get(ctx, "k")
	require.NoError(t, err)
	// The record's salt is adopted, so later reads and writes reuse one key.
	assert.Equal(t, raw[1:1+saltLength], second.salt)
	key := second.key
	require.NotNil(t, key)

	// A record under a foreign salt that fails to open leaves the key alone.
	forged := append([]byte(nil), raw...)
	forged[1] ^= 0xff
	require.NoError(t, inner.Set(ctx, "forged", forged))
	_, err = second.Get(ctx, "forged")
	assert.ErrorIs(t, err, ErrSealBroken)
	assert.Same(t, key, second.key)
	assert.Equal(t, raw[1:1+saltLength], second.salt)

	require.NoError(t, second.Set(ctx, "k2", []byte("v2")))
	raw2, _ := inner.Get(ctx, "k2")
	assert.Equal(t, raw[1:1+saltLength], raw2[1:1+saltLength])
	assert.Same(t, key, second.key)
}

func TestStore_EmptyPassphrase(t *testing.T) {
	_, err := New(stitch.NewMemoryCredentialStore(), "")
	assert.Error(t, err)
}
