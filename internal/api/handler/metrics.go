package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/PNWBNW/Proven-National-Worker/internal/model"
)

var (
	pnwRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pnw_requests_total",
		Help: "Total HTTP requests by method, path, and response status.",
	}, []string{"method", "path", "status"})

	pnwRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pnw_request_duration_seconds",
		Help:    "Request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	pnwDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pnw_decisions_total",
		Help: "Settlement decisions by kind, outcome and code.",
	}, []string{"kind", "outcome", "code"})

	pnwNetworkProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pnw_network_probes_total",
		Help: "Ledger network probes by endpoint and result.",
	}, []string{"endpoint", "result"})

	pnwNetworkProbeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pnw_network_probe_latency_seconds",
		Help:    "Ledger network probe latency in seconds.",
		Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"endpoint"})

	pnwNetworkHealthy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pnw_network_healthy",
		Help: "1 when the last network signal was under both thresholds.",
	})

	pnwNetworkGasFee = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pnw_network_gas_fee",
		Help: "Gas fee of the last network signal.",
	})

	pnwWebhookDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pnw_webhook_deliveries_total",
		Help: "Total webhook deliveries by success status.",
	}, []string{"status"})

	pnwAuditExportsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pnw_audit_entries_exported_total",
		Help: "Audit entries exported to object storage.",
	})
)

// PrometheusMiddleware returns a Gin middleware that records per-request metrics.
func PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		pnwRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		pnwRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// MetricsHandler returns a Gin handler that serves Prometheus metrics.
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordDecision counts a settlement decision. It matches
// settlement.DecisionRecorder.
func RecordDecision(kind string, outcome model.Outcome, code string) {
	pnwDecisionsTotal.WithLabelValues(kind, string(outcome), code).Inc()
}

// RecordNetworkProbe records one endpoint probe. It matches
// health.MetricsRecordFunc.
func RecordNetworkProbe(endpoint string, success bool, latency time.Duration) {
	result := "failure"
	if success {
		result = "success"
	}
	pnwNetworkProbesTotal.WithLabelValues(endpoint, result).Inc()
	pnwNetworkProbeLatency.WithLabelValues(endpoint).Observe(latency.Seconds())
}

// RecordNetworkSignal sets the network gauges from the latest signal.
func RecordNetworkSignal(s model.NetworkSignal, healthy bool) {
	pnwNetworkGasFee.Set(float64(s.GasFee))
	if healthy {
		pnwNetworkHealthy.Set(1)
	} else {
		pnwNetworkHealthy.Set(0)
	}
}

// RecordWebhookDelivery records a webhook delivery attempt.
func RecordWebhookDelivery(success bool) {
	if success {
		pnwWebhookDeliveriesTotal.WithLabelValues("success").Inc()
	} else {
		pnwWebhookDeliveriesTotal.WithLabelValues("failure").Inc()
	}
}

// RecordAuditExport adds n exported audit entries.
func RecordAuditExport(n int) {
	pnwAuditExportsTotal.Add(float64(n))
}
