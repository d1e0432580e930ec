package oidc

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
)

// handleCallback validates the authorization-code callback and, on success,
// exchanges the code for tokens and stores the session. The state cookie is
// deleted on every exit path so a failed callback never leaves a stray
// cookie carrying encrypted state around.
func (f *Filter) handleCallback(ctx context.Context, req Request, sessionID string) (Response, Code) {
	b := newDeniedBuilder(CodeInvalidArgument).
		deleteCookie(stateCookieName(f.Config.CookieNamePrefix))

	encryptedState, ok := req.cookie(stateCookieName(f.Config.CookieNamePrefix))
	if !ok {
		return b.build()
	}
	decrypted, ok := f.Encryptor.Decrypt(encryptedState)
	if !ok {
		return b.build()
	}
	payload, ok := StateCookieCodec{}.Decode(decrypted)
	if !ok {
		return b.build()
	}

	query, err := req.parseQuery()
	if err != nil {
		return b.build()
	}
	queryState := query.Get("state")
	code := query.Get("code")
	if queryState == "" || code == "" {
		return b.build()
	}

	if queryState != payload.State {
		return b.build()
	}

	resp, err := f.exchangeCode(ctx, code)
	if err != nil || resp == nil {
		b.code = CodeInternal
		return b.build()
	}
	if resp.StatusCode != 200 {
		b.code = CodeUnknown
		return b.build()
	}

	token, err := f.Parser.Parse(ctx, f.Config.ClientID, payload.Nonce, resp.Body)
	if err != nil {
		return b.build()
	}
	if f.Config.RequiresAccessToken() && !token.HasAccessToken {
		return b.build()
	}

	f.Store.Set(sessionID, token)

	success := newDeniedBuilder(CodeUnauthenticated).
		deleteCookie(stateCookieName(f.Config.CookieNamePrefix)).
		setRedirect(f.Config.LandingPage)
	return success.build()
}

// exchangeCode POSTs the authorization_code grant to the token endpoint,
// authenticating with HTTP Basic client credentials.
func (f *Filter) exchangeCode(ctx context.Context, code string) (*HttpResponse, error) {
	headers := map[string]string{
		"Content-Type":  "application/x-www-form-urlencoded",
		"Authorization": basicAuth(f.Config.ClientID, f.Config.ClientSecret),
	}

	form := url.Values{}
	form.Set("code", code)
	form.Set("redirect_uri", f.Config.Callback.ToURL())
	form.Set("grant_type", "authorization_code")

	resp, err := f.HTTP.Post(ctx, f.Config.Token.ToURL(), headers, []byte(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	return resp, nil
}

func basicAuth(clientID, clientSecret string) string {
	raw := clientID + ":" + clientSecret
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}
