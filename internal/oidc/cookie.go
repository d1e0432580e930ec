package oidc

import (
	"fmt"
	"strings"
)

const (
	noTimeout = -1

	cookieStateName     = "state"
	cookieSessionIDName = "session-id"
)

// cookieName builds a __Host- prefixed cookie name, optionally namespaced
// by a tenant prefix so multiple virtual hosts sharing a browser origin
// don't collide on cookies.
func cookieName(prefix, name string) string {
	if prefix == "" {
		return "__Host-authservice-" + name + "-cookie"
	}
	return "__Host-" + prefix + "-authservice-" + name + "-cookie"
}

func stateCookieName(prefix string) string     { return cookieName(prefix, cookieStateName) }
func sessionIDCookieName(prefix string) string { return cookieName(prefix, cookieSessionIDName) }

// setCookieDirectives builds the directive string for a Set-Cookie value.
// timeout of noTimeout omits Max-Age.
func setCookieDirectives(timeout int64) string {
	directives := []string{"HttpOnly"}
	if timeout != noTimeout {
		directives = append(directives, fmt.Sprintf("Max-Age=%d", timeout))
	}
	directives = append(directives, "Path=/", "SameSite=Lax", "Secure")
	return strings.Join(directives, "; ")
}

// encodeSetCookie renders a full Set-Cookie header value.
func encodeSetCookie(name, value string, timeout int64) string {
	return fmt.Sprintf("%s=%s; %s", name, value, setCookieDirectives(timeout))
}

// deleteCookieHeader renders the delete form: value "deleted", Max-Age=0.
func deleteCookieHeader(name string) string {
	return encodeSetCookie(name, "deleted", 0)
}

// parseCookieHeader decodes a Cookie request header into name->value pairs
// ("; "-delimited name=value pairs).
func parseCookieHeader(header string) map[string]string {
	out := make(map[string]string)
	if header == "" {
		return out
	}
	for _, part := range strings.Split(header, "; ") {
		name, value, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		out[strings.TrimSpace(name)] = value
	}
	return out
}

func cookieFromHeaders(headers map[string]string, name string) (string, bool) {
	raw, ok := lookupHeader(headers, "cookie")
	if !ok {
		return "", false
	}
	cookies := parseCookieHeader(raw)
	v, ok := cookies[name]
	return v, ok
}

// lookupHeader finds a header by case-insensitive name. CheckRequest headers
// arrive lower-cased per the Envoy convention; callers may still hand us
// net/http's canonical casing in tests, so we don't assume either.
func lookupHeader(headers map[string]string, name string) (string, bool) {
	if v, ok := headers[name]; ok {
		return v, true
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}

// StateCookieCodec encodes/decodes the (state, nonce) pair carried inside the
// encrypted state cookie. The wire format is internal to this service: a
// single ";"-delimited pair.
type StateCookieCodec struct{}

// Encode joins state and nonce into the cookie's wire format.
func (StateCookieCodec) Encode(state, nonce string) string {
	return state + ";" + nonce
}

// Decode fails unless the input contains exactly one separator and both
// halves are non-empty.
func (StateCookieCodec) Decode(s string) (StateCookiePayload, bool) {
	parts := strings.Split(s, ";")
	if len(parts) != 2 {
		return StateCookiePayload{}, false
	}
	if parts[0] == "" || parts[1] == "" {
		return StateCookiePayload{}, false
	}
	return StateCookiePayload{State: parts[0], Nonce: parts[1]}, true
}
