package oidc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProcess_ExpiredSession_RefreshSucceeds(t *testing.T) {
	store := NewMemoryStore()
	store.Set("session-abc", TokenResponse{
		IDTokenJWT:      sampleIDToken("irrelevant", 1),
		IDTokenExpiry:   1,
		RefreshToken:    "refresh-xyz",
		HasRefreshToken: true,
	})

	f := newTestFilter(testConfig(), store)
	f.HTTP = fakeHTTPClient{resp: &HttpResponse{
		StatusCode: 200,
		Body:       []byte(`{"id_token":"` + sampleIDToken("irrelevant", 9999) + `","expires_in":3600}`),
	}}

	req := requestWithHeaders(map[string]string{"cookie": sessionIDCookieName("") + "=session-abc"})
	resp, code := f.Process(context.Background(), req)

	assert.Equal(t, CodeOK, code)
	assert.NotEmpty(t, resp.OKHeaders)

	stored, ok := store.Get("session-abc")
	assert.True(t, ok)
	assert.Equal(t, int64(9999), stored.IDTokenExpiry)
	assert.Equal(t, "refresh-xyz", stored.RefreshToken, "refresh_token is carried forward when the IdP omits it")
}

func TestProcess_ExpiredSession_RefreshFails_EvictsSessionAndRedirects(t *testing.T) {
	store := NewMemoryStore()
	store.Set("session-abc", TokenResponse{
		IDTokenJWT:      sampleIDToken("irrelevant", 1),
		IDTokenExpiry:   1,
		RefreshToken:    "refresh-xyz",
		HasRefreshToken: true,
	})

	f := newTestFilter(testConfig(), store)
	f.HTTP = fakeHTTPClient{resp: &HttpResponse{StatusCode: 400, Body: []byte(`{"error":"invalid_grant"}`)}}

	req := requestWithHeaders(map[string]string{"cookie": sessionIDCookieName("") + "=session-abc"})
	resp, code := f.Process(context.Background(), req)

	assert.Equal(t, CodeUnauthenticated, code)
	assert.NotEmpty(t, resp.DeniedHeaders)

	_, ok := store.Get("session-abc")
	assert.False(t, ok, "a failed refresh evicts the session")
}
