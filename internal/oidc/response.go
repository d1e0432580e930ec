package oidc

// Code is the outcome vocabulary the filter returns alongside its Response.
// internal/extauthz maps these onto google.rpc.Code when building the
// actual gRPC response.
type Code int

const (
	CodeOK Code = iota
	CodeUnauthenticated
	CodeInvalidArgument
	CodeInternal
	CodeUnknown
)

func (c Code) String() string {
	switch c {
	case CodeOK:
		return "OK"
	case CodeUnauthenticated:
		return "UNAUTHENTICATED"
	case CodeInvalidArgument:
		return "INVALID_ARGUMENT"
	case CodeInternal:
		return "INTERNAL"
	case CodeUnknown:
		return "UNKNOWN"
	default:
		return "UNSPECIFIED"
	}
}

// Header is a single response header to attach, possibly a Set-Cookie.
type Header struct {
	Name  string
	Value string
}

// Response is the filter core's output: either an OK decision with headers
// to inject upstream, or a denial with an HTTP status and headers. Exactly
// one of the two shapes is populated, selected by Code.
type Response struct {
	// OKHeaders are injected into the upstream request when Code == CodeOK.
	OKHeaders []Header

	// DeniedStatus is the HTTP status Envoy should answer the client with,
	// valid when Code != CodeOK.
	DeniedStatus int
	// DeniedHeaders are returned to the client (Location, Set-Cookie, the
	// standard no-cache headers, …) when Code != CodeOK.
	DeniedHeaders []Header
}

func standardDenyHeaders() []Header {
	return []Header{
		{Name: "Cache-Control", Value: "no-cache"},
		{Name: "Pragma", Value: "no-cache"},
	}
}

// responseBuilder accumulates the headers/status for a denial or an OK
// response across the several helper actions (redirect, logout, callback)
// that each contribute a piece.
type responseBuilder struct {
	code          Code
	deniedStatus  int
	deniedHeaders []Header
	okHeaders     []Header
}

func newDeniedBuilder(code Code) *responseBuilder {
	b := &responseBuilder{code: code}
	b.deniedHeaders = append(b.deniedHeaders, standardDenyHeaders()...)
	return b
}

func (b *responseBuilder) setRedirect(location string) *responseBuilder {
	b.deniedStatus = 302
	b.deniedHeaders = append(b.deniedHeaders, Header{Name: "Location", Value: location})
	return b
}

func (b *responseBuilder) setCookie(name, value string, timeout int64) *responseBuilder {
	b.deniedHeaders = append(b.deniedHeaders, Header{Name: "Set-Cookie", Value: encodeSetCookie(name, value, timeout)})
	return b
}

func (b *responseBuilder) deleteCookie(name string) *responseBuilder {
	b.deniedHeaders = append(b.deniedHeaders, Header{Name: "Set-Cookie", Value: deleteCookieHeader(name)})
	return b
}

func (b *responseBuilder) build() (Response, Code) {
	return Response{
		DeniedStatus:  b.deniedStatus,
		DeniedHeaders: b.deniedHeaders,
	}, b.code
}

func okResponse(headers ...Header) (Response, Code) {
	return Response{OKHeaders: headers}, CodeOK
}

func malformedResponse() (Response, Code) {
	return MalformedResponse()
}

// MalformedResponse builds the standard "malformed request" denial: the
// standard no-cache deny headers with no further context. Exported so
// callers that can't route to a Filter at all (e.g. a CheckRequest missing
// its HTTP sub-message entirely) can still produce a spec-compliant denial
// without needing a Filter instance.
func MalformedResponse() (Response, Code) {
	return Response{DeniedHeaders: standardDenyHeaders()}, CodeInvalidArgument
}
