package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveDecision_IncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(decisionsTotal.WithLabelValues("ok"))
	ObserveDecision("ok", 0)
	after := testutil.ToFloat64(decisionsTotal.WithLabelValues("ok"))
	assert.Equal(t, before+1, after)
}

func TestObserveIdPRequest_RecordsHistogram(t *testing.T) {
	ObserveIdPRequest("authorization_code", "ok", 0)
	// No panic and the vector accepts the label combination; presence is
	// enough since histograms don't expose a single scalar via ToFloat64.
	_, err := idpRequestDuration.GetMetricWithLabelValues("authorization_code", "ok")
	require.NoError(t, err)
}

func TestSince_ReportsNonNegativeDuration(t *testing.T) {
	start := Now()
	assert.True(t, Since(start) >= 0)
}

func TestHandler_ServesMetricsEndpoint(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler().ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "authservice_filter_decisions_total")
}
