// ABOUTME: Tests for console metrics collectors and endpoint area labels
// ABOUTME: Reads counters back with prometheus testutil

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestArea(t *testing.T) {
	tests := map[string]string{
		"/core/v1/admin/users?search=a":       "admin/users",
		"/core/v1/admin/users/42/credits":     "admin/users",
		"/core/v1/pricing/config":             "pricing",
		"/core/v1/setup/status":               "setup",
		"/core/v1/admin/apps/x/affordability": "admin/apps",
		"/providers/flowise/execute":          "providers",
		"":                                    "root",
	}
	for in, want := range tests {
		assert.Equal(t, want, Area(in), in)
	}
}

func TestObserveUpstream(t *testing.T) {
	m := New()
	m.ObserveUpstream(http.MethodGet, "/core/v1/pricing/config", 200, 10*time.Millisecond)
	m.ObserveUpstream(http.MethodGet, "/core/v1/pricing/config", 200, 10*time.Millisecond)
	m.ObserveUpstream(http.MethodPut, "/core/v1/pricing/config", 0, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.upstreamRequests.WithLabelValues("GET", "pricing", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamRequests.WithLabelValues("PUT", "pricing", "error")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveHTTP("GET", "/", 200, time.Millisecond)
	m.ObserveUpstream("GET", "/core/v1/setup/status", 200, time.Millisecond)
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.ObserveHTTP(http.MethodGet, "/console/{page}", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `flowstarter_console_http_requests_total{method="GET",route="/console/{page}",status="200"} 1`)
}
