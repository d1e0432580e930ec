package oidc

import (
	"context"
	"net/url"
)

// refresh POSTs the refresh_token grant with client credentials in the body
// (RFC 6749 §2.3.1's alternative to HTTP Basic), then hands the body to
// ParseRefreshTokenResponse to merge with prior. A nil response, non-200
// status, or parse error all mean "no new tokens" — the caller is
// responsible for evicting the session on failure.
func (f *Filter) refresh(ctx context.Context, prior TokenResponse) (TokenResponse, bool) {
	headers := map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	}

	form := url.Values{}
	form.Set("client_id", f.Config.ClientID)
	form.Set("client_secret", f.Config.ClientSecret)
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", prior.RefreshToken)
	form.Set("scope", f.spaceDelimitedScopes())

	resp, err := f.HTTP.Post(ctx, f.Config.Token.ToURL(), headers, []byte(form.Encode()))
	if err != nil || resp == nil {
		return TokenResponse{}, false
	}
	if resp.StatusCode != 200 {
		return TokenResponse{}, false
	}

	refreshed, err := f.Parser.ParseRefreshTokenResponse(ctx, prior, f.Config.ClientID, resp.Body)
	if err != nil {
		return TokenResponse{}, false
	}
	return refreshed, true
}
