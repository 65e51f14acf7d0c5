package relay

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records Prometheus metrics for requests served by a Router. A nil
// *Metrics records nothing.
type Metrics struct {
	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	inflight   prometheus.Gauge
	timeouts   *prometheus.CounterVec
	wsSessions prometheus.Gauge
}

// NewMetrics creates the collectors under namespace and registers them with
// reg.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Requests served, by method, matched endpoint and status.",
		}, []string{"method", "endpoint", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Time from receiving a request to writing its response.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Requests currently being served.",
		}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "async_timeouts_total",
			Help:      "Requests whose async result did not arrive in time.",
		}, []string{"method", "endpoint"}),
		wsSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_sessions",
			Help:      "Open WebSocket sessions.",
		}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.duration, m.inflight, m.timeouts, m.wsSessions} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// MetricsHandler serves the metrics gathered by g in the Prometheus text format.
func MetricsHandler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func endpointLabel(c *Context) string {
	if c == nil || c.endpoint == nil {
		return "unmatched"
	}
	return c.endpoint.pattern.String()
}

func (m *Metrics) begin() {
	if m == nil {
		return
	}
	m.inflight.Inc()
}

func (m *Metrics) end() {
	if m == nil {
		return
	}
	m.inflight.Dec()
}

func (m *Metrics) observe(c *Context, elapsed time.Duration) {
	if m == nil {
		return
	}
	ep := endpointLabel(c)
	m.requests.WithLabelValues(c.Method(), ep, strconv.Itoa(c.StatusCode())).Inc()
	m.duration.WithLabelValues(c.Method(), ep).Observe(elapsed.Seconds())
}

// timedOut counts an async timeout. c is nil when the Context is owned by
// another goroutine.
func (m *Metrics) timedOut(c *Context) {
	if m == nil {
		return
	}
	method := ""
	if c != nil {
		method = c.Method()
	}
	m.timeouts.WithLabelValues(method, endpointLabel(c)).Inc()
}

func (m *Metrics) wsOpened() {
	if m == nil {
		return
	}
	m.wsSessions.Inc()
}

func (m *Metrics) wsClosed() {
	if m == nil {
		return
	}
	m.wsSessions.Dec()
}
