package oidc

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

const mandatoryScope = "openid"

// Filter is the core decision function: a pure function over (config,
// request, session store, clock, randomness, crypto, HTTP client). It holds
// no mutable state of its own and is safe for concurrent Process calls,
// provided its collaborators are.
type Filter struct {
	Config OIDCConfig

	Store      SessionStore
	Encryptor  Encryptor
	SessionIDs SessionIdGenerator
	Parser     TokenResponseParser
	HTTP       HttpClient

	// Now is injectable for deterministic expiry tests; defaults to
	// time.Now.
	Now func() time.Time

	// RandomString generates the 32-byte URL-safe state/nonce values;
	// injectable for deterministic redirect-URL tests.
	RandomString func() (string, error)

	// OnDecision, if set, is called once per Process invocation with the
	// matched guard name and the returned code — the hook decision logging
	// and metrics hang off of without coupling the core to either library.
	OnDecision func(guard string, code Code)
}

// New builds a Filter with the given collaborators and sane defaults for the
// clock and random-string generator.
func New(cfg OIDCConfig, store SessionStore, enc Encryptor, ids SessionIdGenerator, parser TokenResponseParser, client HttpClient) *Filter {
	return &Filter{
		Config:     cfg,
		Store:      store,
		Encryptor:  enc,
		SessionIDs: ids,
		Parser:     parser,
		HTTP:       client,
		Now:        time.Now,
		RandomString: func() (string, error) {
			return randomURLSafeString(randomBytesLen)
		},
	}
}

func (f *Filter) now() time.Time {
	if f.Now != nil {
		return f.Now()
	}
	return time.Now()
}

func (f *Filter) report(guard string, resp Response, code Code) (Response, Code) {
	if f.OnDecision != nil {
		f.OnDecision(guard, code)
	}
	return resp, code
}

// Process runs the request through an ordered chain of guards — malformed,
// logout, pass-through, no-session-id, callback, session lookup, refresh —
// and returns as soon as the first one matches.
func (f *Filter) Process(ctx context.Context, req Request) (Response, Code) {
	if req.Headers == nil {
		resp, code := malformedResponse()
		return f.report("malformed", resp, code)
	}

	// 2. Logout.
	if f.Config.Logout != nil && req.pathOnly() == f.Config.Logout.Path {
		resp, code := f.handleLogout(req)
		return f.report("logout", resp, code)
	}

	// 3. Pass-through: id-token header already present.
	if _, ok := req.header(f.Config.IDToken.HeaderName); ok {
		resp, code := okResponse()
		return f.report("pass-through", resp, code)
	}

	sessionID, hasSession := req.cookie(sessionIDCookieName(f.Config.CookieNamePrefix))

	// 4. No session id.
	if !hasSession {
		resp, code := f.beginLogin(req, true)
		return f.report("no-session-id", resp, code)
	}

	// 5. Callback.
	if f.matchesCallback(req) {
		resp, code := f.handleCallback(ctx, req, sessionID)
		return f.report("callback", resp, code)
	}

	// 6. Session-id present: look up.
	token, ok := f.Store.Get(sessionID)
	if !ok || (f.Config.RequiresAccessToken() && !token.HasAccessToken) {
		resp, code := f.beginLogin(req, false)
		return f.report("session-invalid", resp, code)
	}

	if !f.tokensExpired(token) {
		resp, code := okResponse(f.tokenHeaders(token)...)
		return f.report("session-valid", resp, code)
	}

	if token.HasRefreshToken {
		refreshed, ok := f.refresh(ctx, token)
		if ok {
			f.Store.Set(sessionID, refreshed)
			resp, code := okResponse(f.tokenHeaders(refreshed)...)
			return f.report("refreshed", resp, code)
		}
		f.Store.Remove(sessionID)
		resp, code := f.beginLogin(req, false)
		return f.report("refresh-failed", resp, code)
	}

	resp, code := f.beginLogin(req, false)
	return f.report("expired-no-refresh", resp, code)
}

// tokensExpired checks the id_token expiry unconditionally, and the
// access_token expiry only when it's known.
func (f *Filter) tokensExpired(t TokenResponse) bool {
	now := f.now().Unix()
	if t.IDTokenExpiry < now {
		return true
	}
	return t.HasAccessExpiry && t.AccessTokenExpiry < now
}

func (f *Filter) tokenHeaders(t TokenResponse) []Header {
	headers := []Header{
		{Name: f.Config.IDToken.HeaderName, Value: f.Config.IDToken.Encode(t.IDTokenJWT)},
	}
	if f.Config.RequiresAccessToken() && t.HasAccessToken {
		headers = append(headers, Header{
			Name:  f.Config.AccessToken.HeaderName,
			Value: f.Config.AccessToken.Encode(t.AccessToken),
		})
	}
	return headers
}

// handleLogout evicts the session (if any) and redirects to the configured
// post-logout URI, clearing both cookies.
func (f *Filter) handleLogout(req Request) (Response, Code) {
	if sessionID, ok := req.cookie(sessionIDCookieName(f.Config.CookieNamePrefix)); ok {
		f.Store.Remove(sessionID)
	}

	b := newDeniedBuilder(CodeUnauthenticated).
		setRedirect(f.Config.Logout.RedirectToURI).
		deleteCookie(stateCookieName(f.Config.CookieNamePrefix)).
		deleteCookie(sessionIDCookieName(f.Config.CookieNamePrefix))
	return b.build()
}

// beginLogin implements the "no session id" and "redirect-to-IdP" guards.
// When issueSessionID is true a fresh session-id cookie is also minted; when
// false, an existing-but-invalid session simply gets redirected again
// without reissuing the session-id cookie.
func (f *Filter) beginLogin(req Request, issueSessionID bool) (Response, Code) {
	b := newDeniedBuilder(CodeUnauthenticated)

	if issueSessionID {
		sessionID, err := f.SessionIDs.Generate()
		if err != nil {
			// Can't mint a session id; degrade to a redirect without one —
			// the next request will retry this same branch.
			sessionID = ""
		}
		if sessionID != "" {
			b.setCookie(sessionIDCookieName(f.Config.CookieNamePrefix), sessionID, noTimeout)
		}
	}

	location, stateCookieValue, err := f.buildAuthorizationRedirect()
	if err != nil {
		return Response{DeniedHeaders: standardDenyHeaders()}, CodeInternal
	}

	b.setRedirect(location)
	b.setCookie(stateCookieName(f.Config.CookieNamePrefix), stateCookieValue, f.Config.Timeout)
	return b.build()
}

// buildAuthorizationRedirect assembles the authorization-endpoint redirect
// URL and the encrypted state-cookie value that must accompany it.
func (f *Filter) buildAuthorizationRedirect() (location, encryptedStateCookie string, err error) {
	state, err := f.randomString()
	if err != nil {
		return "", "", fmt.Errorf("generating state: %w", err)
	}
	nonce, err := f.randomString()
	if err != nil {
		return "", "", fmt.Errorf("generating nonce: %w", err)
	}

	params := url.Values{}
	params.Set("client_id", f.Config.ClientID)
	params.Set("nonce", nonce)
	params.Set("redirect_uri", f.Config.Callback.ToURL())
	params.Set("response_type", "code")
	params.Set("scope", f.spaceDelimitedScopes())
	params.Set("state", state)

	location = f.Config.Authorization.ToURL() + "?" + encodeQueryAlphabetical(params)

	codec := StateCookieCodec{}
	encoded := codec.Encode(state, nonce)
	sealed, err := f.Encryptor.Encrypt(encoded)
	if err != nil {
		return "", "", fmt.Errorf("encrypting state cookie: %w", err)
	}
	return location, sealed, nil
}

func (f *Filter) randomString() (string, error) {
	if f.RandomString != nil {
		return f.RandomString()
	}
	return randomURLSafeString(randomBytesLen)
}

// spaceDelimitedScopes assembles a deterministic, deduplicated,
// lexicographically sorted scope list, always including "openid".
func (f *Filter) spaceDelimitedScopes() string {
	set := map[string]struct{}{mandatoryScope: {}}
	for _, s := range f.Config.Scopes {
		set[s] = struct{}{}
	}
	scopes := make([]string, 0, len(set))
	for s := range set {
		scopes = append(scopes, s)
	}
	sort.Strings(scopes)
	return strings.Join(scopes, " ")
}

// encodeQueryAlphabetical renders params in alphabetical-by-key order for a
// deterministic redirect URL, using %20 for space.
func encodeQueryAlphabetical(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(queryEscape(k))
		b.WriteByte('=')
		b.WriteString(queryEscape(params.Get(k)))
	}
	return b.String()
}

// queryEscape percent-encodes a query component, encoding space as %20
// rather than url.QueryEscape's "+".
func queryEscape(s string) string {
	escaped := url.QueryEscape(s)
	return strings.ReplaceAll(escaped, "+", "%20")
}

// matchesCallback reports whether req targets this filter's callback path
// and host, tolerating the host header omitting a default scheme port.
func (f *Filter) matchesCallback(req Request) bool {
	cb := f.Config.Callback
	if req.pathOnly() != cb.Path {
		return false
	}

	requestHost := req.Host

	if requestHost == cb.hostWithPort() {
		return true
	}
	if cb.Scheme == "https" && cb.Port == 443 && requestHost == cb.Hostname {
		return true
	}
	if cb.Scheme == "http" && cb.Port == 80 && requestHost == cb.Hostname {
		return true
	}
	return false
}
