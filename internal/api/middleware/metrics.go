// Package middleware holds gin middleware shared by the API server.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cotproxy_http_requests_total",
		Help: "Requests handled, by method, path and status.",
	}, []string{"method", "path", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cotproxy_http_request_duration_seconds",
		Help:    "Request latency. Streaming requests count until the stream closes.",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"method", "path"})

	activeRequests = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cotproxy_http_requests_in_flight",
		Help: "Requests currently being served.",
	})
)

// Metrics returns middleware that records request counts, latency and
// in-flight gauge for every route.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		activeRequests.Inc()

		c.Next()

		activeRequests.Dec()
		path := c.FullPath()
		if path == "" {
			path = "passthrough"
		}
		requestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
		requestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// PrometheusHandler serves the /metrics scrape endpoint.
func PrometheusHandler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
