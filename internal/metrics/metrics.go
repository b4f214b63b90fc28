// Package metrics exposes the process-wide Prometheus instrumentation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_server_requests_total",
		Help: "HTTP requests handled, by route, method and status class.",
	}, []string{"route", "method", "status_class"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_server_request_duration_seconds",
		Help:    "HTTP request handling latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	spoolEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spool_enqueue_total",
		Help: "Revocation requests written to the spool.",
	}, []string{"reason"})

	spoolDequeued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spool_dequeue_total",
		Help: "Spool files removed by the processor, by outcome.",
	}, []string{"outcome"})

	spoolCanceled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spool_cancel_pending_total",
		Help: "Spool files canceled by subject re-enable events.",
	})

	spoolDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spool_queue_depth",
		Help: "Spool files pending forward.",
	})
)

func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500 && status < 600:
		return "5xx"
	default:
		return "other"
	}
}

// RecordHTTPRequest counts one handled request
func RecordHTTPRequest(route, method string, status int, seconds float64) {
	httpRequestsTotal.WithLabelValues(route, method, statusClass(status)).Inc()
	httpRequestDuration.WithLabelValues(route, method).Observe(seconds)
}

// IncSpoolEnqueued counts a revocation written to the spool
func IncSpoolEnqueued(reason string) {
	spoolEnqueued.WithLabelValues(reason).Inc()
}

// IncSpoolDequeued counts a spool file removed by the processor
func IncSpoolDequeued(outcome string) {
	spoolDequeued.WithLabelValues(outcome).Inc()
}

// AddSpoolCanceled counts files removed by cancel-by-subject
func AddSpoolCanceled(n int) {
	spoolCanceled.Add(float64(n))
}

// SetSpoolDepth records the current number of pending spool files
func SetSpoolDepth(n int) {
	spoolDepth.Set(float64(n))
}

// Handler serves the Prometheus exposition endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
