package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	ordersFulfilledTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orders_fulfilled_total",
			Help: "Total number of payment fulfillments processed",
		},
		[]string{"status"},
	)

	templateDownloadsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "template_downloads_total",
			Help: "Total number of template files served",
		},
	)
)

func init() {
	prometheus.MustRegister(httpRequestsTotal)
	prometheus.MustRegister(httpRequestDuration)
	prometheus.MustRegister(ordersFulfilledTotal)
	prometheus.MustRegister(templateDownloadsTotal)
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		duration := time.Since(start).Seconds()

		httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

// RecordOrderFulfilled counts fulfillment outcomes: "created" for a new
// order, "duplicate" for an already-seen payment, "failed" for errors.
func RecordOrderFulfilled(status string) {
	ordersFulfilledTotal.WithLabelValues(status).Inc()
}

func RecordTemplateDownload() {
	templateDownloadsTotal.Inc()
}
