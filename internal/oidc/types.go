// Package oidc implements the per-request OIDC Relying Party decision core:
// recognition of request intent, state-cookie issuance/validation, session
// lookup, token refresh, and the cookie/header shaping of the response. It
// has no knowledge of Envoy or gRPC — those live in internal/extauthz.
package oidc

import "fmt"

// Endpoint is a structured HTTP endpoint, as carried by OIDCConfig.
type Endpoint struct {
	Scheme   string
	Hostname string
	Port     int
	Path     string
}

// ToURL renders scheme://hostname[:port]/path, matching the reference
// implementation's default-port-aware ToUrl.
func (e Endpoint) ToURL() string {
	if e.isDefaultPort() {
		return fmt.Sprintf("%s://%s%s", e.Scheme, e.Hostname, e.Path)
	}
	return fmt.Sprintf("%s://%s:%d%s", e.Scheme, e.Hostname, e.Port, e.Path)
}

func (e Endpoint) isDefaultPort() bool {
	return (e.Scheme == "https" && e.Port == 443) || (e.Scheme == "http" && e.Port == 80)
}

// hostWithPort is the literal "hostname:port" form used for callback host
// matching.
func (e Endpoint) hostWithPort() string {
	return fmt.Sprintf("%s:%d", e.Hostname, e.Port)
}

// HeaderConfig configures an injected upstream header: <preamble> <value>.
type HeaderConfig struct {
	HeaderName string
	Preamble   string
}

// Encode prefixes value with the configured preamble, if any.
func (h HeaderConfig) Encode(value string) string {
	if h.Preamble == "" {
		return value
	}
	return h.Preamble + " " + value
}

// LogoutConfig is present only when the filter should honor a logout path.
type LogoutConfig struct {
	Path          string
	RedirectToURI string
}

// OIDCConfig is the immutable, per-filter-instance configuration: endpoints,
// client credentials, scopes, cookie naming, and the headers tokens get
// injected into upstream.
type OIDCConfig struct {
	Authorization Endpoint
	Token         Endpoint
	JWKSURI       string
	Callback      Endpoint

	ClientID     string
	ClientSecret string

	Scopes []string

	CookieNamePrefix string

	IDToken     HeaderConfig
	AccessToken *HeaderConfig // nil disables access-token enforcement/forwarding

	LandingPage string
	Logout      *LogoutConfig

	// Timeout is the state cookie Max-Age, in seconds.
	Timeout int64
}

// RequiresAccessToken reports whether the access-token header is configured.
func (c OIDCConfig) RequiresAccessToken() bool { return c.AccessToken != nil }

// TokenResponse is the parsed result of an IdP token-endpoint exchange.
type TokenResponse struct {
	IDTokenJWT string
	IDClaims   IDTokenClaims

	AccessToken        string
	HasAccessToken     bool
	AccessTokenExpiry  int64
	HasAccessExpiry    bool

	RefreshToken    string
	HasRefreshToken bool

	// IDTokenExpiry is required: the "exp" claim, seconds since epoch.
	IDTokenExpiry int64
}

// IDTokenClaims holds the subset of id_token claims the filter core cares
// about. Signature verification happens upstream of this struct, in the
// TokenResponseParser's collaborator.
type IDTokenClaims struct {
	Expiry int64
	Nonce  string
	Raw    map[string]interface{}
}

// StateCookiePayload is the pair bound into the encrypted state cookie.
type StateCookiePayload struct {
	State string
	Nonce string
}
