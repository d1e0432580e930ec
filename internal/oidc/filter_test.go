package oidc

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEncryptor is a reversible non-cryptographic stand-in so tests can
// assert on plaintext round-trips without pulling in crypto_aesgcm.go's
// scrypt cost.
type fakeEncryptor struct{}

func (fakeEncryptor) Encrypt(plaintext string) (string, error) { return "enc:" + plaintext, nil }
func (fakeEncryptor) Decrypt(ciphertext string) (string, bool) {
	const prefix = "enc:"
	if len(ciphertext) < len(prefix) || ciphertext[:len(prefix)] != prefix {
		return "", false
	}
	return ciphertext[len(prefix):], true
}

type fixedSessionIDs struct{ id string }

func (f fixedSessionIDs) Generate() (string, error) { return f.id, nil }

// fakeVerifier trusts any claims handed to it without checking a signature,
// so callback/refresh tests can exercise the parser without real JWTs.
type fakeVerifier struct{}

func (fakeVerifier) Verify(_ context.Context, _, rawIDToken string) (map[string]interface{}, error) {
	return decodeUnverifiedClaims(rawIDToken)
}

func testConfig() OIDCConfig {
	return OIDCConfig{
		Authorization: Endpoint{Scheme: "https", Hostname: "idp.example.com", Port: 443, Path: "/authorize"},
		Token:         Endpoint{Scheme: "https", Hostname: "idp.example.com", Port: 443, Path: "/token"},
		JWKSURI:       "https://idp.example.com/jwks",
		Callback:      Endpoint{Scheme: "https", Hostname: "app.example.com", Port: 443, Path: "/callback"},
		ClientID:      "client-123",
		ClientSecret:  "secret-xyz",
		Scopes:        []string{"profile"},
		IDToken:       HeaderConfig{HeaderName: "x-id-token", Preamble: "Bearer"},
		LandingPage:   "/",
		Timeout:       3600,
	}
}

func newTestFilter(cfg OIDCConfig, store SessionStore) *Filter {
	return &Filter{
		Config:       cfg,
		Store:        store,
		Encryptor:    fakeEncryptor{},
		SessionIDs:   fixedSessionIDs{id: "session-abc"},
		Parser:       &DefaultTokenResponseParser{Verifier: fakeVerifier{}, Now: time.Now},
		HTTP:         nil,
		Now:          func() time.Time { return time.Unix(1000, 0) },
		RandomString: func() (string, error) { return "rand-value", nil },
	}
}

func requestWithHeaders(headers map[string]string) Request {
	return Request{Scheme: "https", Host: "app.example.com", Path: "/", Headers: headers}
}

func TestProcess_Malformed(t *testing.T) {
	f := newTestFilter(testConfig(), NewMemoryStore())
	resp, code := f.Process(context.Background(), Request{})
	assert.Equal(t, CodeInvalidArgument, code)
	assert.Empty(t, resp.OKHeaders)
}

func TestProcess_PassThrough(t *testing.T) {
	f := newTestFilter(testConfig(), NewMemoryStore())
	req := requestWithHeaders(map[string]string{"x-id-token": "Bearer some.jwt.token"})
	resp, code := f.Process(context.Background(), req)
	assert.Equal(t, CodeOK, code)
	assert.Empty(t, resp.OKHeaders)
}

func TestProcess_NoSessionID_RedirectsAndIssuesSessionID(t *testing.T) {
	f := newTestFilter(testConfig(), NewMemoryStore())
	resp, code := f.Process(context.Background(), requestWithHeaders(map[string]string{}))

	require.Equal(t, CodeUnauthenticated, code)
	var sawLocation, sawSessionCookie, sawStateCookie bool
	for _, h := range resp.DeniedHeaders {
		if h.Name == "Location" {
			sawLocation = true
			assert.Contains(t, h.Value, "https://idp.example.com/authorize?")
			assert.Contains(t, h.Value, "client_id=client-123")
			assert.Contains(t, h.Value, "scope=openid%20profile")
		}
		if h.Name == "Set-Cookie" {
			if strings.Contains(h.Value, sessionIDCookieName("")) {
				sawSessionCookie = true
			}
			if strings.Contains(h.Value, stateCookieName("")) {
				sawStateCookie = true
			}
		}
	}
	assert.True(t, sawLocation, "expected a Location header")
	assert.True(t, sawSessionCookie, "expected a session-id Set-Cookie header")
	assert.True(t, sawStateCookie, "expected a state Set-Cookie header")
}

func TestProcess_SessionValid_NoAccessTokenRequired(t *testing.T) {
	store := NewMemoryStore()
	store.Set("session-abc", TokenResponse{IDTokenJWT: "jwt-value", IDTokenExpiry: 2000})

	f := newTestFilter(testConfig(), store)
	req := requestWithHeaders(map[string]string{"cookie": sessionIDCookieName("") + "=session-abc"})

	resp, code := f.Process(context.Background(), req)
	require.Equal(t, CodeOK, code)
	require.Len(t, resp.OKHeaders, 1)
	assert.Equal(t, "x-id-token", resp.OKHeaders[0].Name)
	assert.Equal(t, "Bearer jwt-value", resp.OKHeaders[0].Value)
}

func TestProcess_SessionValid_AccessTokenRequiredButMissing_RedirectsWithoutReissuingSessionID(t *testing.T) {
	cfg := testConfig()
	cfg.AccessToken = &HeaderConfig{HeaderName: "x-access-token"}

	store := NewMemoryStore()
	store.Set("session-abc", TokenResponse{IDTokenJWT: "jwt-value", IDTokenExpiry: 2000})

	f := newTestFilter(cfg, store)
	req := requestWithHeaders(map[string]string{"cookie": sessionIDCookieName("") + "=session-abc"})

	resp, code := f.Process(context.Background(), req)
	require.Equal(t, CodeUnauthenticated, code)
	for _, h := range resp.DeniedHeaders {
		if h.Name == "Set-Cookie" {
			assert.False(t, strings.Contains(h.Value, sessionIDCookieName("")), "must not reissue session-id cookie")
		}
	}
}

func TestProcess_SessionExpired_NoRefreshToken_Redirects(t *testing.T) {
	store := NewMemoryStore()
	store.Set("session-abc", TokenResponse{IDTokenJWT: "jwt-value", IDTokenExpiry: 1})

	f := newTestFilter(testConfig(), store)
	req := requestWithHeaders(map[string]string{"cookie": sessionIDCookieName("") + "=session-abc"})

	_, code := f.Process(context.Background(), req)
	assert.Equal(t, CodeUnauthenticated, code)
	_, stillPresent := store.Get("session-abc")
	assert.True(t, stillPresent, "a session with no refresh token is left for the next beginLogin, not removed")
}

func TestProcess_Logout_RemovesSessionAndRedirects(t *testing.T) {
	cfg := testConfig()
	cfg.Logout = &LogoutConfig{Path: "/logout", RedirectToURI: "https://app.example.com/bye"}

	store := NewMemoryStore()
	store.Set("session-abc", TokenResponse{IDTokenJWT: "jwt-value", IDTokenExpiry: 2000})

	f := newTestFilter(cfg, store)
	req := Request{
		Scheme:  "https",
		Host:    "app.example.com",
		Path:    "/logout",
		Headers: map[string]string{"cookie": sessionIDCookieName("") + "=session-abc"},
	}

	resp, code := f.Process(context.Background(), req)
	assert.Equal(t, CodeUnauthenticated, code)
	_, stillPresent := store.Get("session-abc")
	assert.False(t, stillPresent)

	var sawLocation bool
	for _, h := range resp.DeniedHeaders {
		if h.Name == "Location" {
			sawLocation = true
			assert.Equal(t, "https://app.example.com/bye", h.Value)
		}
	}
	assert.True(t, sawLocation)
}

func TestProcess_Logout_IdempotentWithoutSession(t *testing.T) {
	cfg := testConfig()
	cfg.Logout = &LogoutConfig{Path: "/logout", RedirectToURI: "https://app.example.com/bye"}

	f := newTestFilter(cfg, NewMemoryStore())
	req := Request{Scheme: "https", Host: "app.example.com", Path: "/logout", Headers: map[string]string{}}

	resp, code := f.Process(context.Background(), req)
	assert.Equal(t, CodeUnauthenticated, code)
	assert.NotEmpty(t, resp.DeniedHeaders)
}

