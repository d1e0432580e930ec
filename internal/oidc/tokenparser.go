package oidc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TokenResponseParser parses an IdP token-endpoint response body into a
// TokenResponse. Signature verification and JWKS retrieval are excluded
// from the core and delegated to the Verifier this parser holds.
type TokenResponseParser interface {
	// Parse handles the authorization_code exchange response: the parsed
	// id_token's nonce claim must equal expectedNonce.
	Parse(ctx context.Context, clientID, expectedNonce string, body []byte) (TokenResponse, error)

	// ParseRefreshTokenResponse handles a refresh_token response, merging
	// it over prior: fields the response omits are carried forward.
	ParseRefreshTokenResponse(ctx context.Context, prior TokenResponse, clientID string, body []byte) (TokenResponse, error)
}

// Verifier checks an id_token's signature and issuer/audience, returning its
// claims. JWKS retrieval lives behind this interface; the default
// implementation is internal/verifier.JWKSVerifier.
type Verifier interface {
	Verify(ctx context.Context, clientID, rawIDToken string) (map[string]interface{}, error)
}

// tokenEndpointResponse is the token-endpoint JSON body shape.
type tokenEndpointResponse struct {
	IDToken      string `json:"id_token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// DefaultTokenResponseParser is the reference TokenResponseParser: it decodes
// the token-endpoint JSON body, verifies the id_token via the injected
// Verifier, and assembles a TokenResponse.
type DefaultTokenResponseParser struct {
	Verifier Verifier
	Now      func() time.Time
}

// NewDefaultTokenResponseParser builds a parser backed by v.
func NewDefaultTokenResponseParser(v Verifier) *DefaultTokenResponseParser {
	return &DefaultTokenResponseParser{Verifier: v, Now: time.Now}
}

func (p *DefaultTokenResponseParser) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Parse implements TokenResponseParser.
func (p *DefaultTokenResponseParser) Parse(ctx context.Context, clientID, expectedNonce string, body []byte) (TokenResponse, error) {
	var resp tokenEndpointResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return TokenResponse{}, fmt.Errorf("decoding token response: %w", err)
	}
	if resp.IDToken == "" {
		return TokenResponse{}, fmt.Errorf("token response is missing id_token")
	}
	if _, err := decodeUnverifiedClaims(resp.IDToken); err != nil {
		return TokenResponse{}, fmt.Errorf("rejecting malformed id_token before verification: %w", err)
	}

	claims, err := p.Verifier.Verify(ctx, clientID, resp.IDToken)
	if err != nil {
		return TokenResponse{}, fmt.Errorf("verifying id_token: %w", err)
	}

	idClaims, err := claimsFromMap(claims)
	if err != nil {
		return TokenResponse{}, err
	}
	if idClaims.Nonce != expectedNonce {
		return TokenResponse{}, fmt.Errorf("id_token nonce does not match the state cookie's nonce")
	}

	tr := TokenResponse{
		IDTokenJWT:    resp.IDToken,
		IDClaims:      idClaims,
		IDTokenExpiry: idClaims.Expiry,
	}
	if resp.AccessToken != "" {
		tr.AccessToken = resp.AccessToken
		tr.HasAccessToken = true
		if resp.ExpiresIn > 0 {
			tr.AccessTokenExpiry = p.now().Unix() + resp.ExpiresIn
			tr.HasAccessExpiry = true
		}
	}
	if resp.RefreshToken != "" {
		tr.RefreshToken = resp.RefreshToken
		tr.HasRefreshToken = true
	}
	return tr, nil
}

// ParseRefreshTokenResponse implements TokenResponseParser. Fields the
// refresh response omits are carried forward from prior — including
// reusing prior's refresh_token when the IdP doesn't rotate it.
func (p *DefaultTokenResponseParser) ParseRefreshTokenResponse(ctx context.Context, prior TokenResponse, clientID string, body []byte) (TokenResponse, error) {
	var resp tokenEndpointResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return TokenResponse{}, fmt.Errorf("decoding refresh token response: %w", err)
	}

	merged := prior

	if resp.IDToken != "" {
		claims, err := p.Verifier.Verify(ctx, clientID, resp.IDToken)
		if err != nil {
			return TokenResponse{}, fmt.Errorf("verifying refreshed id_token: %w", err)
		}
		idClaims, err := claimsFromMap(claims)
		if err != nil {
			return TokenResponse{}, err
		}
		merged.IDTokenJWT = resp.IDToken
		merged.IDClaims = idClaims
		merged.IDTokenExpiry = idClaims.Expiry
	}

	if resp.AccessToken != "" {
		merged.AccessToken = resp.AccessToken
		merged.HasAccessToken = true
		if resp.ExpiresIn > 0 {
			merged.AccessTokenExpiry = p.now().Unix() + resp.ExpiresIn
			merged.HasAccessExpiry = true
		} else {
			merged.HasAccessExpiry = false
		}
	}

	if resp.RefreshToken != "" {
		// IdP rotated the refresh token.
		merged.RefreshToken = resp.RefreshToken
		merged.HasRefreshToken = true
	}
	// else: IdP omitted refresh_token, keep prior's (already in merged).

	return merged, nil
}

// claimsFromMap extracts the claims the filter core needs ("exp", "nonce")
// from a verified claim set.
func claimsFromMap(claims map[string]interface{}) (IDTokenClaims, error) {
	exp, ok := numberClaim(claims, "exp")
	if !ok {
		return IDTokenClaims{}, fmt.Errorf("id_token is missing a numeric exp claim")
	}
	nonce, _ := claims["nonce"].(string)
	return IDTokenClaims{Expiry: exp, Nonce: nonce, Raw: claims}, nil
}

func numberClaim(claims map[string]interface{}, key string) (int64, bool) {
	v, ok := claims[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

// decodeUnverifiedClaims base64url-decodes a compact JWT's payload segment
// without checking its signature. It exists for diagnostics and lets
// callers reject an obviously malformed token before attempting a JWKS
// round trip.
func decodeUnverifiedClaims(rawJWT string) (map[string]interface{}, error) {
	parts := strings.Split(rawJWT, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed JWT: expected 3 dot-separated parts, got %d", len(parts))
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decoding JWT payload: %w", err)
	}
	var claims map[string]interface{}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("unmarshaling JWT claims: %w", err)
	}
	return claims, nil
}
