// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradevera/internal/risk"
	"tradevera/internal/trades"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Admission metrics
	TradesCreated      *prometheus.CounterVec
	TradesRejected     *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram

	// Guardrail metrics
	LockoutsTriggered *prometheus.CounterVec
	LockoutsCleared   *prometheus.CounterVec

	// HTTP metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
}

var (
	_ trades.Metrics = (*Metrics)(nil)
	_ risk.Observer  = (*Metrics)(nil)
)

// NewMetrics creates a Metrics instance registered on its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "tradevera"
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		TradesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "created_total",
			Help:      "Total number of trades admitted by asset class",
		}, []string{"asset_class"}),
		TradesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trades",
			Name:      "rejected_total",
			Help:      "Total number of trade creations rejected by reason",
		}, []string{"reason"}),
		EvaluationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "evaluation_duration_seconds",
			Help:      "Guardrail evaluation latency in seconds",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		}),

		LockoutsTriggered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "lockouts_triggered_total",
			Help:      "Total number of lockouts imposed by reason",
		}, []string{"reason"}),
		LockoutsCleared: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "risk",
			Name:      "lockouts_cleared_total",
			Help:      "Total number of lockouts cleared by source",
		}, []string{"source"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),

		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ws",
			Name:      "connections",
			Help:      "Number of open user WebSocket connections",
		}),
	}
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// TradeCreated records an admitted trade.
func (m *Metrics) TradeCreated(assetClass string) {
	m.TradesCreated.WithLabelValues(assetClass).Inc()
}

// TradeRejected records a rejected trade creation.
func (m *Metrics) TradeRejected(reason string) {
	m.TradesRejected.WithLabelValues(reason).Inc()
}

// ObserveEvaluation records guardrail evaluation latency.
func (m *Metrics) ObserveEvaluation(d time.Duration) {
	m.EvaluationDuration.Observe(d.Seconds())
}

// LockoutTriggered records an imposed lockout.
func (m *Metrics) LockoutTriggered(reason risk.Reason) {
	m.LockoutsTriggered.WithLabelValues(string(reason)).Inc()
}

// LockoutCleared records a cleared lockout.
func (m *Metrics) LockoutCleared(source string) {
	m.LockoutsCleared.WithLabelValues(source).Inc()
}

// WSConnected adjusts the open WebSocket gauge by delta.
func (m *Metrics) WSConnected(delta int) {
	m.WSConnections.Add(float64(delta))
}

// GinMiddleware records request count and latency per matched route.
func (m *Metrics) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}
