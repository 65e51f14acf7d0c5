package relay_test

import (
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bjaus/relay"
)

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics, err := relay.NewMetrics(reg, "test")
	require.NoError(t, err)

	r := relay.New(relay.WithMetrics(metrics), relay.WithAsyncTimeout(time.Millisecond))
	r.Get("/users/{id}", text("user"))
	r.Get("/slow", futureHandler(relay.NewFuture))

	serve(t, r, http.MethodGet, "/users/1", nil)
	serve(t, r, http.MethodGet, "/users/2", nil)
	serve(t, r, http.MethodGet, "/nowhere", nil)
	serve(t, r, http.MethodGet, "/slow", nil)

	expected := `
# HELP test_http_requests_total Requests served, by method, matched endpoint and status.
# TYPE test_http_requests_total counter
test_http_requests_total{endpoint="/slow",method="GET",status="500"} 1
test_http_requests_total{endpoint="/users/{id}",method="GET",status="200"} 2
test_http_requests_total{endpoint="unmatched",method="GET",status="404"} 1
# HELP test_http_requests_in_flight Requests currently being served.
# TYPE test_http_requests_in_flight gauge
test_http_requests_in_flight 0
# HELP test_async_timeouts_total Requests whose async result did not arrive in time.
# TYPE test_async_timeouts_total counter
test_async_timeouts_total{endpoint="/slow",method="GET"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"test_http_requests_total",
		"test_http_requests_in_flight",
		"test_async_timeouts_total",
	))

	count, err := testutil.GatherAndCount(reg, "test_http_request_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestNewMetrics_duplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := relay.NewMetrics(reg, "dup")
	require.NoError(t, err)

	_, err = relay.NewMetrics(reg, "dup")
	var already prometheus.AlreadyRegisteredError
	require.ErrorAs(t, err, &already)
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	metrics, err := relay.NewMetrics(reg, "scrape")
	require.NoError(t, err)

	r := relay.New(relay.WithMetrics(metrics))
	r.Get("/metrics", relay.FromHTTP(relay.MetricsHandler(reg)))
	r.Get("/ping", text("pong"))

	serve(t, r, http.MethodGet, "/ping", nil)
	rec := serve(t, r, http.MethodGet, "/metrics", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `scrape_http_requests_total{endpoint="/ping",method="GET",status="200"} 1`)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}

func TestMetrics_nilIsNoop(t *testing.T) {
	t.Parallel()

	r := relay.New(relay.WithMetrics(nil))
	r.Get("/", text("ok"))

	assert.Equal(t, "ok", serve(t, r, http.MethodGet, "/", nil).Body.String())
}
