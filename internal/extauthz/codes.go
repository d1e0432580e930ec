package extauthz

import (
	rpccode "google.golang.org/genproto/googleapis/rpc/code"

	"github.com/prismon/authservice/internal/oidc"
)

// toRPCCode maps the filter core's Code onto the google.rpc.Code vocabulary
// the outer CheckResponse.Status.Code carries.
func toRPCCode(c oidc.Code) rpccode.Code {
	switch c {
	case oidc.CodeOK:
		return rpccode.Code_OK
	case oidc.CodeUnauthenticated:
		return rpccode.Code_UNAUTHENTICATED
	case oidc.CodeInvalidArgument:
		return rpccode.Code_INVALID_ARGUMENT
	case oidc.CodeInternal:
		return rpccode.Code_INTERNAL
	case oidc.CodeUnknown:
		return rpccode.Code_UNKNOWN
	default:
		return rpccode.Code_UNKNOWN
	}
}

// defaultHTTPStatus picks the HTTP status Envoy answers the client with when
// the filter core didn't already set one explicitly (redirects set their own
// 302; everything else falls back to a status matching its Code).
func defaultHTTPStatus(c oidc.Code) int32 {
	switch c {
	case oidc.CodeUnauthenticated:
		return 401
	case oidc.CodeInvalidArgument:
		return 400
	case oidc.CodeInternal:
		return 500
	case oidc.CodeUnknown:
		return 502
	default:
		return 403
	}
}
