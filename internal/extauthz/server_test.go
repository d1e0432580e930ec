package extauthz

import (
	"context"
	"testing"

	authv3 "github.com/envoyproxy/go-control-plane/envoy/service/auth/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prismon/authservice/internal/oidc"
)

func testFilter() *oidc.Filter {
	cfg := oidc.OIDCConfig{
		IDToken: oidc.HeaderConfig{HeaderName: "x-id-token"},
		Authorization: oidc.Endpoint{
			Scheme: "https", Hostname: "idp.example.com", Port: 443, Path: "/authorize",
		},
		Token: oidc.Endpoint{
			Scheme: "https", Hostname: "idp.example.com", Port: 443, Path: "/token",
		},
		Callback: oidc.Endpoint{
			Scheme: "https", Hostname: "app.example.com", Port: 443, Path: "/callback",
		},
		ClientID:     "client-123",
		ClientSecret: "secret-xyz",
	}

	enc, err := oidc.NewAESGCMEncryptor(oidc.NewStaticSecretSource("test-secret-value"))
	if err != nil {
		panic(err)
	}

	return oidc.New(cfg, oidc.NewMemoryStore(), enc, oidc.RandomSessionIdGenerator{}, nil, nil)
}

func TestCheck_PassThroughReturnsOK(t *testing.T) {
	server := NewServer(SingleFilterRouter{Filter: testFilter()}, nil)

	req := &authv3.CheckRequest{
		Attributes: &authv3.AttributeContext{
			Request: &authv3.AttributeContext_Request{
				Http: &authv3.AttributeContext_HttpRequest{
					Host:    "app.example.com",
					Method:  "GET",
					Path:    "/",
					Headers: map[string]string{"x-id-token": "already-present"},
				},
			},
		},
	}

	resp, err := server.Check(context.Background(), req)
	require.NoError(t, err)

	ok := resp.GetOkResponse()
	require.NotNil(t, ok, "pass-through should produce an OkHttpResponse")
}

func TestCheck_NoSessionIDReturnsDenied(t *testing.T) {
	server := NewServer(SingleFilterRouter{Filter: testFilter()}, nil)

	req := &authv3.CheckRequest{
		Attributes: &authv3.AttributeContext{
			Request: &authv3.AttributeContext_Request{
				Http: &authv3.AttributeContext_HttpRequest{
					Host:   "app.example.com",
					Method: "GET",
					Path:   "/",
				},
			},
		},
	}

	resp, err := server.Check(context.Background(), req)
	require.NoError(t, err)

	denied := resp.GetDeniedResponse()
	require.NotNil(t, denied)
	assert.NotEmpty(t, denied.GetHeaders())
}

func TestCheck_UnknownHostReturnsInvalidArgument(t *testing.T) {
	server := NewServer(emptyRouter{}, nil)

	req := &authv3.CheckRequest{
		Attributes: &authv3.AttributeContext{
			Request: &authv3.AttributeContext_Request{
				Http: &authv3.AttributeContext_HttpRequest{Host: "unknown.example.com"},
			},
		},
	}

	resp, err := server.Check(context.Background(), req)
	require.NoError(t, err)
	assert.NotNil(t, resp.GetDeniedResponse())
}

func TestCheck_MissingHttpSubMessageReturnsStandardDenyHeaders(t *testing.T) {
	server := NewServer(emptyRouter{}, nil)

	req := &authv3.CheckRequest{
		Attributes: &authv3.AttributeContext{
			Request: &authv3.AttributeContext_Request{},
		},
	}

	resp, err := server.Check(context.Background(), req)
	require.NoError(t, err)

	denied := resp.GetDeniedResponse()
	require.NotNil(t, denied)
	assert.Equal(t, int32(400), int32(denied.GetStatus().GetCode()))

	headers := denied.GetHeaders()
	require.NotEmpty(t, headers, "a malformed CheckRequest must still carry the standard no-cache deny headers")
	names := make(map[string]string, len(headers))
	for _, h := range headers {
		names[h.GetHeader().GetKey()] = h.GetHeader().GetValue()
	}
	assert.Equal(t, "no-cache", names["Cache-Control"])
	assert.Equal(t, "no-cache", names["Pragma"])
}

type emptyRouter struct{}

func (emptyRouter) FilterFor(string) (*oidc.Filter, bool) { return nil, false }

func TestLowercaseHeaders(t *testing.T) {
	in := map[string]string{"X-Id-Token": "abc", "cookie": "a=b"}
	out := lowercaseHeaders(in)
	assert.Equal(t, "abc", out["x-id-token"])
	assert.Equal(t, "a=b", out["cookie"])
}

func TestToHeaderValueOptions(t *testing.T) {
	headers := []oidc.Header{{Name: "Location", Value: "https://example.com"}}
	out := toHeaderValueOptions(headers)
	require.Len(t, out, 1)
	assert.Equal(t, "Location", out[0].GetHeader().GetKey())
	assert.Equal(t, "https://example.com", out[0].GetHeader().GetValue())
}
