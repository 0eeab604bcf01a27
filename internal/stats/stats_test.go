package stats

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.updateChan, "expected updateChan to be initialized")
	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/metrics"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /metrics to be set")
	assert.Equal(t, "GET /metrics", pattern, "expected handler to be registered for GET method on /metrics")
}

func TestStatsUpdater_IncrDecr(t *testing.T) {
	su := NewStatsUpdater(http.NewServeMux())
	su.RegisterMetric(NumActiveConnections)
	su.RegisterMetric(NumActiveConnections)

	// Apply updates synchronously by draining the channel after closing it.
	su.Incr(NumActiveConnections)
	su.Incr(NumActiveConnections)
	su.Decr(NumActiveConnections)
	su.Stop()
	su.updateMetrics()

	assert.Equal(t, float64(1), testutil.ToFloat64(su.gauges[NumActiveConnections]))
}

func TestStatsUpdater_MetricsEndpoint(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	su.RegisterMetric(NumOnlineUsers)

	su.Incr(NumOnlineUsers)
	su.Stop()
	su.updateMetrics()

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "chatty_online_users 1"))
	assert.True(t, strings.Contains(string(body), "chatty_uptime_seconds"))
}

func TestStatsUpdater_UpdatesAfterStop(t *testing.T) {
	su := NewStatsUpdater(http.NewServeMux())
	su.RegisterMetric(NumActiveConnections)
	su.Run()

	su.Incr(NumActiveConnections)
	su.Stop()
	su.Stop()

	assert.NotPanics(t, func() {
		su.Incr(NumActiveConnections)
		su.Decr(NumActiveConnections)
	}, "expected updates after Stop to be dropped")
}
