package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics are the service's prometheus collectors.
type Metrics struct {
	// requests counts HTTP requests by route and status
	requests *prometheus.CounterVec

	// requestDuration tracks handler wall time by route
	requestDuration *prometheus.HistogramVec

	// classifications counts results by engine and action ("none" action when no result)
	classifications *prometheus.CounterVec

	// latencyTicks tracks clock ticks from start to result by engine
	latencyTicks *prometheus.HistogramVec

	// verifyRuns counts verification runs by outcome
	verifyRuns *prometheus.CounterVec

	// treeLoads counts trees programmed into the core
	treeLoads prometheus.Counter

	// coreTicks mirrors the core's tick counter
	coreTicks prometheus.Gauge
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dtree_http_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"method", "route", "status"}),

		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dtree_http_request_duration_seconds",
			Help:    "HTTP handler duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to ~800ms
		}, []string{"route"}),

		classifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dtree_classifications_total",
			Help: "Classification results by engine and action",
		}, []string{"engine", "action"}),

		latencyTicks: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dtree_classification_latency_ticks",
			Help:    "Ticks from start pulse to result",
			Buckets: []float64{0, 1, 2, 3, 4, 5, 6, 8, 12, 16, 20, 32, 64},
		}, []string{"engine"}),

		verifyRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dtree_verify_runs_total",
			Help: "Verification runs by result",
		}, []string{"result"}), // "pass", "mismatch" or "error"

		treeLoads: f.NewCounter(prometheus.CounterOpts{
			Name: "dtree_tree_loads_total",
			Help: "Trees programmed into the core",
		}),

		coreTicks: f.NewGauge(prometheus.GaugeOpts{
			Name: "dtree_core_ticks",
			Help: "Clock edges applied to the core since start",
		}),
	}
}

// MetricsHandler serves the handler's registry in the prometheus text format.
func (h *APIHandler) MetricsHandler() gin.HandlerFunc {
	ph := promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.mu.Lock()
		h.metrics.coreTicks.Set(float64(h.core.Ticks()))
		h.mu.Unlock()
		ph.ServeHTTP(c.Writer, c.Request)
	}
}
