package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RequestCount counts HTTP requests
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// RequestDuration measures HTTP request duration
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "endpoint"},
	)

	// RunCount counts reuse runs by outcome step (done, not_found, failed)
	RunCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reuse_runs_total",
			Help: "Total number of text reuse runs",
		},
		[]string{"outcome"},
	)

	// RunDuration measures run duration
	RunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reuse_run_duration_seconds",
			Help:    "Text reuse run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	// ConnectionsPerRun observes how many connections a run produced
	ConnectionsPerRun = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reuse_run_connections",
			Help:    "Connections found per run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// ShinglesScanned counts shingles probed against target indexes
	ShinglesScanned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reuse_shingles_scanned_total",
			Help: "Total number of source shingles probed against target indexes",
		},
	)

	// RecordsSkipped counts corpus records ignored, by reason (malformed, unknown_document)
	RecordsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reuse_records_skipped_total",
			Help: "Total number of corpus records skipped",
		},
		[]string{"reason"},
	)

	initOnce sync.Once
)

// InitPrometheus registers the service metrics with the default registry
func InitPrometheus() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestCount)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(RunCount)
		prometheus.MustRegister(RunDuration)
		prometheus.MustRegister(ConnectionsPerRun)
		prometheus.MustRegister(ShinglesScanned)
		prometheus.MustRegister(RecordsSkipped)
	})
}

// MetricsHandler returns Prometheus metrics handler
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// GinMiddleware records request count and duration per route
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		RequestCount.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}
