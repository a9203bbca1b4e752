// Package metrics exposes prometheus instruments for the production workflow
// and the HTTP API. A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "distline"

type Metrics struct {
	produced        prometheus.Counter
	rejected        *prometheus.CounterVec
	cascadeWarnings *prometheus.CounterVec
	productionTime  prometheus.Histogram
	requests        *prometheus.CounterVec
	requestTime     *prometheus.HistogramVec
}

// New registers the instruments on reg. A nil registerer yields a no-op set.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	m := &Metrics{
		produced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedules_produced_total",
			Help:      "Schedules moved to the produced state.",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "production_rejected_total",
			Help:      "Production attempts rejected before any write.",
		}, []string{"reason"}),
		cascadeWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_warnings_total",
			Help:      "Member items that could not be marked completed after production.",
		}, []string{"variant"}),
		productionTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "production_duration_seconds",
			Help:      "Time spent producing a schedule including the completion cascade.",
			Buckets:   prometheus.DefBuckets,
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		requestTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(m.produced, m.rejected, m.cascadeWarnings, m.productionTime, m.requests, m.requestTime)
	return m
}

func (m *Metrics) IncProduced() {
	if m == nil || m.produced == nil {
		return
	}
	m.produced.Inc()
}

func (m *Metrics) IncRejected(reason string) {
	if m == nil || m.rejected == nil {
		return
	}
	m.rejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *Metrics) IncCascadeWarning(variant string) {
	if m == nil || m.cascadeWarnings == nil {
		return
	}
	m.cascadeWarnings.WithLabelValues(normalizeLabel(variant)).Inc()
}

func (m *Metrics) ObserveProduction(d time.Duration) {
	if m == nil || m.productionTime == nil {
		return
	}
	m.productionTime.Observe(d.Seconds())
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil || m.requests == nil {
		return
	}
	route = normalizeLabel(route)
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestTime.WithLabelValues(method, route).Observe(d.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
