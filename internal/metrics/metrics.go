// Package metrics exposes the Prometheus counters and histograms for the
// ext_authz decision loop — an ambient concern left to the embedding
// service, not the filter core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "authservice"

var (
	decisionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "filter",
		Name:      "decisions_total",
		Help:      "Total ext_authz Check decisions, by outcome code.",
	}, []string{"outcome"})

	decisionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "filter",
		Name:      "decision_duration_seconds",
		Help:      "Duration of a single ext_authz Check call, end to end.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})

	idpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "idp",
		Name:      "request_duration_seconds",
		Help:      "Duration of outbound requests to the IdP token endpoint.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"grant_type", "outcome"})
)

func init() {
	prometheus.MustRegister(decisionsTotal, decisionDuration, idpRequestDuration)
}

// Now returns the current time; a thin seam so callers don't import "time"
// just to time a Check call.
func Now() time.Time { return time.Now() }

// Since reports the elapsed duration since start.
func Since(start time.Time) time.Duration { return time.Since(start) }

// ObserveDecision records one Check call's outcome and latency.
func ObserveDecision(outcome string, duration time.Duration) {
	decisionsTotal.WithLabelValues(outcome).Inc()
	decisionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveIdPRequest records one outbound token-endpoint call's latency,
// grantType being "authorization_code" or "refresh_token" and outcome one
// of "ok", "non-2xx", or "error".
func ObserveIdPRequest(grantType, outcome string, duration time.Duration) {
	idpRequestDuration.WithLabelValues(grantType, outcome).Observe(duration.Seconds())
}

// Handler exposes the registered collectors for an HTTP /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
