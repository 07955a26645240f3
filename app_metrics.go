package relay

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics holds the collectors recorded by Metrics.
type RequestMetrics struct {
	inFlight prometheus.Gauge
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewRequestMetrics creates the collectors and registers them with reg.
func NewRequestMetrics(reg prometheus.Registerer) *RequestMetrics {
	m := &RequestMetrics{
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "relay",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "relay",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "relay",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "route"}),
	}
	if reg != nil {
		reg.MustRegister(m.inFlight, m.requests, m.duration)
	}
	return m
}

// Middleware records one observation per request, labelled with the route
// pattern rather than the raw path to keep label cardinality bounded.
func (m *RequestMetrics) Middleware() Middleware {
	return Named("metrics", MiddlewareFn(func(rc *RequestContext, next Next) (*HttpResponse, error) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		res, err := next()

		status := StatusOK
		if err != nil {
			status = StatusForFailure(AsFailure(err))
		} else if res != nil {
			status = res.StatusCode
		}
		route := "unmatched"
		if r := rc.Route(); r != nil {
			route = r.Path()
		}
		method := string(rc.Method())
		m.requests.WithLabelValues(method, route, strconv.Itoa(int(status))).Inc()
		m.duration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		return res, err
	}))
}

// Metrics is shorthand for NewRequestMetrics(reg).Middleware().
func Metrics(reg prometheus.Registerer) Middleware {
	return NewRequestMetrics(reg).Middleware()
}
