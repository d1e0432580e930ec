package oidc

import (
	"net/url"
	"strings"
)

// Request is the filter core's view of the inbound HTTP request, adapted
// from the ext_authz CheckRequest by internal/extauthz. Headers are the raw
// request headers, including Cookie; the filter core never mutates them. A
// nil Headers map stands for a CheckRequest with no HTTP sub-message, which
// Process rejects as malformed; a request without headers uses an empty map.
type Request struct {
	Scheme  string
	Host    string
	Path    string // includes the query string, as Envoy's http.path does
	Headers map[string]string
}

// pathAndQuery splits Path into its path and query components, treating the
// first "?" as the separator.
func (r Request) pathAndQuery() (path, query string) {
	before, after, found := strings.Cut(r.Path, "?")
	if !found {
		return r.Path, ""
	}
	return before, after
}

func (r Request) pathOnly() string {
	p, _ := r.pathAndQuery()
	return p
}

// cookie looks up a single cookie value by name from the Cookie header.
func (r Request) cookie(name string) (string, bool) {
	return cookieFromHeaders(r.Headers, name)
}

// header looks up a request header by case-insensitive name.
func (r Request) header(name string) (string, bool) {
	return lookupHeader(r.Headers, name)
}

// parseQuery decodes the request's query string.
func (r Request) parseQuery() (url.Values, error) {
	_, query := r.pathAndQuery()
	return url.ParseQuery(query)
}
