package sessionstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismon/authservice/internal/oidc"
	"github.com/prismon/authservice/internal/sessionstore/valkeytest"
)

func TestValkeyStore_SetGetRemove_RoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Valkey container test in short mode")
	}

	addr, done := valkeytest.NewTestValkey(t)
	defer done()

	store, err := NewValkeyStore(ValkeyOptions{Addrs: []string{addr}})
	require.NoError(t, err)
	defer store.Close()

	token := oidc.TokenResponse{
		IDTokenJWT:    "id-token-value",
		AccessToken:   "access-token-value",
		RefreshToken:  "refresh-token-value",
		IDTokenExpiry: time.Now().Add(10 * time.Minute).Unix(),
	}

	_, ok := store.Get("session-1")
	require.False(t, ok, "session must not exist before Set")

	store.Set("session-1", token)

	got, ok := store.Get("session-1")
	require.True(t, ok, "session must be retrievable after Set")
	assert.Equal(t, token.IDTokenJWT, got.IDTokenJWT)
	assert.Equal(t, token.AccessToken, got.AccessToken)
	assert.Equal(t, token.RefreshToken, got.RefreshToken)
	assert.Equal(t, token.IDTokenExpiry, got.IDTokenExpiry)

	store.Remove("session-1")

	_, ok = store.Get("session-1")
	assert.False(t, ok, "session must be gone after Remove")
}

func TestValkeyStore_Get_MissingSessionReportsNotOK(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping Valkey container test in short mode")
	}

	addr, done := valkeytest.NewTestValkey(t)
	defer done()

	store, err := NewValkeyStore(ValkeyOptions{Addrs: []string{addr}})
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.Get("never-set")
	assert.False(t, ok)
}
