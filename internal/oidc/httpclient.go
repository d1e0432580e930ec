package oidc

import "context"

// HttpResponse is the minimal shape the filter core needs back from a POST
// to the IdP: status code and body. Keeping this instead of *http.Response
// lets tests supply trivial fakes without pulling in net/http.
type HttpResponse struct {
	StatusCode int
	Body       []byte
}

// HttpClient issues POST requests to the IdP token endpoint. A non-nil error
// signals a network-level failure distinct from a non-200 IdP response. On
// the authorization-code exchange the filter core maps the two to
// CodeInternal and CodeUnknown respectively; during a refresh either one
// fails the refresh.
type HttpClient interface {
	Post(ctx context.Context, url string, headers map[string]string, body []byte) (*HttpResponse, error)
}
