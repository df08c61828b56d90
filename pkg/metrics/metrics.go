// Package metrics holds the Prometheus collectors of the API process.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Decision outcomes.
const (
	OutcomeAllowed   = "allowed"
	OutcomeDenied    = "denied"
	OutcomeBypass    = "bypass"
	OutcomeError     = "error"
	OutcomeMalformed = "malformed"
)

// Cache lookup results.
const (
	CacheHit      = "hit"
	CacheMiss     = "miss"
	CacheFallback = "fallback"
)

type Metrics struct {
	AuthzDecisions      *prometheus.CounterVec
	CacheLookups        *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer, serviceName string) *Metrics {
	labels := prometheus.Labels{"service": serviceName}
	m := &Metrics{
		AuthzDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "authz_decisions_total",
				Help:        "Authorization decisions by outcome",
				ConstLabels: labels,
			},
			[]string{"outcome"},
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "permission_cache_lookups_total",
				Help:        "Permission cache lookups by backend and result",
				ConstLabels: labels,
			},
			[]string{"backend", "result"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "http_requests_total",
				Help:        "Total number of HTTP requests",
				ConstLabels: labels,
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "http_request_duration_seconds",
				Help:        "Histogram of HTTP request latency",
				ConstLabels: labels,
				Buckets:     []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
	}
	reg.MustRegister(m.AuthzDecisions, m.CacheLookups, m.HTTPRequestsTotal, m.HTTPRequestDuration)
	return m
}

func (m *Metrics) Decision(outcome string) {
	if m == nil {
		return
	}
	m.AuthzDecisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CacheLookup(backend, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(backend, result).Inc()
}

// Middleware records request counts and latency per route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the /metrics endpoint for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
