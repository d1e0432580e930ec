// Package extauthz is the gRPC ext_authz service shell: it adapts between
// Envoy's envoy.service.auth.v3.Authorization protocol and the oidc
// package's Filter.Process. The decision core itself has no knowledge of
// Envoy, gRPC, or protobuf — those all live here.
package extauthz

import (
	"context"
	"strings"

	corev3 "github.com/envoyproxy/go-control-plane/envoy/config/core/v3"
	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	typev3 "github.com/envoyproxy/go-control-plane/envoy/type/v3"
	log "github.com/sirupsen/logrus"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc/codes"

	"github.com/prismon/authservice/internal/logging"
	"github.com/prismon/authservice/internal/metrics"
	"github.com/prismon/authservice/internal/oidc"
)

// Router picks the Filter that should handle a request, so a single server
// can front several virtual hosts each with their own OIDCConfig.
type Router interface {
	FilterFor(host string) (*oidc.Filter, bool)
}

// SingleFilterRouter always routes to one Filter — the common case of one
// OIDC-protected virtual host per process.
type SingleFilterRouter struct {
	Filter *oidc.Filter
}

// FilterFor implements Router.
func (r SingleFilterRouter) FilterFor(string) (*oidc.Filter, bool) { return r.Filter, true }

// Server implements authv3.AuthorizationServer.
type Server struct {
	authv3.UnimplementedAuthorizationServer
	Router Router
	Log    *log.Logger
}

// NewServer builds a Server routing every Check call through router.
func NewServer(router Router, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Server{Router: router, Log: logger}
}

// Check implements authv3.AuthorizationServer.Check.
func (s *Server) Check(ctx context.Context, req *authv3.CheckRequest) (*authv3.CheckResponse, error) {
	ctx, requestID := logging.WithCorrelationID(ctx)
	start := metrics.Now()

	httpReq := req.GetAttributes().GetRequest().GetHttp()
	if httpReq == nil {
		resp, code := oidc.MalformedResponse()
		metrics.ObserveDecision(code.String(), metrics.Since(start))
		s.Log.WithField("request_id", requestID).Warn("CheckRequest is missing its HTTP sub-message")
		return deniedResponse(code, resp), nil
	}

	filter, ok := s.Router.FilterFor(httpReq.GetHost())
	if !ok {
		s.Log.WithFields(log.Fields{"request_id": requestID, "host": httpReq.GetHost()}).
			Warn("no OIDC virtual host configured for request")
		metrics.ObserveDecision(oidc.CodeInvalidArgument.String(), metrics.Since(start))
		return deniedResponse(oidc.CodeInvalidArgument, oidc.Response{}), nil
	}

	oidcReq := oidc.Request{
		Scheme:  httpReq.GetScheme(),
		Host:    httpReq.GetHost(),
		Path:    httpReq.GetPath(),
		Headers: lowercaseHeaders(httpReq.GetHeaders()),
	}

	resp, code := filter.Process(ctx, oidcReq)
	metrics.ObserveDecision(code.String(), metrics.Since(start))

	s.Log.WithFields(log.Fields{
		"request_id": requestID,
		"host":       httpReq.GetHost(),
		"path":       httpReq.GetPath(),
		"status":     code.String(),
	}).Info("processed ext_authz check")

	if code == oidc.CodeOK {
		return okResponse(resp), nil
	}
	return deniedResponse(code, resp), nil
}

// lowercaseHeaders normalizes header names to Envoy's lower-case convention
// so oidc.Request's case-insensitive lookups behave consistently regardless
// of caller casing.
func lowercaseHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		out[strings.ToLower(k)] = v
	}
	return out
}

func okResponse(resp oidc.Response) *authv3.CheckResponse {
	return &authv3.CheckResponse{
		Status: &rpcstatus.Status{Code: int32(codes.OK)},
		HttpResponse: &authv3.CheckResponse_OkResponse{
			OkResponse: &authv3.OkHttpResponse{
				Headers: toHeaderValueOptions(resp.OKHeaders),
			},
		},
	}
}

func deniedResponse(code oidc.Code, resp oidc.Response) *authv3.CheckResponse {
	httpStatus := int32(resp.DeniedStatus)
	if httpStatus == 0 {
		httpStatus = defaultHTTPStatus(code)
	}

	return &authv3.CheckResponse{
		Status: &rpcstatus.Status{Code: int32(toRPCCode(code))},
		HttpResponse: &authv3.CheckResponse_DeniedResponse{
			DeniedResponse: &authv3.DeniedHttpResponse{
				Status:  &typev3.HttpStatus{Code: typev3.StatusCode(httpStatus)},
				Headers: toHeaderValueOptions(resp.DeniedHeaders),
			},
		},
	}
}

func toHeaderValueOptions(headers []oidc.Header) []*corev3.HeaderValueOption {
	out := make([]*corev3.HeaderValueOption, 0, len(headers))
	for _, h := range headers {
		out = append(out, &corev3.HeaderValueOption{
			Header: &corev3.HeaderValue{Key: h.Name, Value: h.Value},
		})
	}
	return out
}
