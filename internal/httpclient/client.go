// Package httpclient provides the default oidc.HttpClient: a net/http
// client wrapped in a circuit breaker around calls to the IdP token
// endpoint, so a wedged IdP degrades to fast failures instead of holding
// every concurrent request to its dial timeout.
package httpclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/prismon/authservice/internal/metrics"
	"github.com/prismon/authservice/internal/oidc"
)

// Client is the default oidc.HttpClient implementation.
type Client struct {
	http    *http.Client
	breaker *gobreaker.CircuitBreaker
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the underlying *http.Client's overall request timeout,
// which covers connecting, sending the request and reading the response body.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// New builds a Client with a circuit breaker named for logging/metrics.
func New(name string, opts ...Option) *Client {
	c := &Client{
		http: &http.Client{Timeout: 10 * time.Second},
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Post implements oidc.HttpClient.
func (c *Client) Post(ctx context.Context, target string, headers map[string]string, body []byte) (*oidc.HttpResponse, error) {
	start := metrics.Now()
	grantType := grantTypeOf(body)

	result, err := c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("building IdP request: %w", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("calling IdP token endpoint: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("reading IdP response body: %w", err)
		}
		return &oidc.HttpResponse{StatusCode: resp.StatusCode, Body: respBody}, nil
	})
	if err != nil {
		// A network or breaker-open failure surfaces as (nil, err) to the
		// filter core. On the authorization-code exchange it maps either a
		// non-nil error or a nil response to CodeInternal — never to
		// CodeUnknown, which is reserved for a non-200 status actually
		// returned by the IdP. During a refresh, either one fails the refresh.
		metrics.ObserveIdPRequest(grantType, "error", metrics.Since(start))
		return nil, err
	}

	resp := result.(*oidc.HttpResponse)
	outcome := "ok"
	if resp.StatusCode != http.StatusOK {
		outcome = "non-2xx"
	}
	metrics.ObserveIdPRequest(grantType, outcome, metrics.Since(start))
	return resp, nil
}

// grantTypeOf extracts the grant_type form field for metric labeling,
// without needing the caller to pass it separately.
func grantTypeOf(body []byte) string {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return "unknown"
	}
	if gt := values.Get("grant_type"); gt != "" {
		return gt
	}
	return "unknown"
}
