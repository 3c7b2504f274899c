package obs

import (
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics holds the collectors for the machine API.
type HTTPMetrics struct {
	ReqTotal *prometheus.CounterVec
	ReqDur   *prometheus.HistogramVec
	InFlight prometheus.Gauge
	// Rejections counts requests a machine operation refused, by error code.
	Rejections *prometheus.CounterVec
}

// DefaultBuckets are request latency bounds in milliseconds. Operations run
// in memory, so the upper buckets mostly catch lock waits on a shared Redis.
var DefaultBuckets = []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000}

// NewHTTPMetrics registers the collectors on reg, reusing any that are
// already registered under the same names.
func NewHTTPMetrics(namespace string, buckets []float64, reg prometheus.Registerer) *HTTPMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &HTTPMetrics{
		ReqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Requests handled by the machine API.",
		}, []string{"method", "route", "status"}),
		ReqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "Machine API latency in milliseconds.",
			Buckets:   normalizeBuckets(buckets),
		}, []string{"method", "route"}),
		InFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "Machine API requests currently being served.",
		}),
		Rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_rejections_total",
			Help:      "Machine operations refused over HTTP, by operation and error code.",
		}, []string{"operation", "code"}),
	}
	mustRegisterCollector(reg, m.ReqTotal, func(c prometheus.Collector) { reuseCounterVec(&m.ReqTotal, c) })
	mustRegisterCollector(reg, m.Rejections, func(c prometheus.Collector) { reuseCounterVec(&m.Rejections, c) })
	mustRegisterCollector(reg, m.ReqDur, func(c prometheus.Collector) {
		if v, ok := c.(*prometheus.HistogramVec); ok {
			m.ReqDur = v
		}
	})
	mustRegisterCollector(reg, m.InFlight, func(c prometheus.Collector) {
		if v, ok := c.(prometheus.Gauge); ok {
			m.InFlight = v
		}
	})
	return m
}

// observe records one finished request.
func (m *HTTPMetrics) observe(method, route, status string, took time.Duration, outcome *Outcome) {
	m.ReqTotal.WithLabelValues(method, route, status).Inc()
	m.ReqDur.WithLabelValues(method, route).Observe(DurationMillis(took))
	if outcome != nil && outcome.ErrorCode != "" {
		op := outcome.Operation
		if op == "" {
			op = "unknown"
		}
		m.Rejections.WithLabelValues(op, outcome.ErrorCode).Inc()
	}
}

func normalizeBuckets(buckets []float64) []float64 {
	if len(buckets) == 0 {
		return DefaultBuckets
	}
	out := append([]float64(nil), buckets...)
	sort.Float64s(out)
	return out
}

func reuseCounterVec(dst **prometheus.CounterVec, c prometheus.Collector) {
	if v, ok := c.(*prometheus.CounterVec); ok {
		*dst = v
	}
}

// DurationMillis converts d to fractional milliseconds.
func DurationMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
