package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/daybook/internal/metrics"
)

// unmatchedRoute labels requests that hit no route, keeping label cardinality bounded
const unmatchedRoute = "unmatched"

// MetricsMiddleware collects HTTP metrics for Prometheus. The path label is the
// route template (/api/v1/progress-items/:id), never the raw URL.
func MetricsMiddleware() gin.HandlerFunc {
	m := metrics.Get()

	return func(c *gin.Context) {
		method := c.Request.Method
		path := c.FullPath()
		if path == "" {
			path = unmatchedRoute
		}

		m.HTTPRequestsInFlight.WithLabelValues(method, path).Inc()
		defer m.HTTPRequestsInFlight.WithLabelValues(method, path).Dec()

		if contentLength := c.Request.ContentLength; contentLength > 0 {
			m.HTTPRequestSize.WithLabelValues(method, path).Observe(float64(contentLength))
		}

		startTime := time.Now()
		c.Next()

		duration := time.Since(startTime).Seconds()
		// Numeric status labels let queries match status=~"5.."
		status := strconv.Itoa(c.Writer.Status())

		m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		if size := c.Writer.Size(); size > 0 {
			m.HTTPResponseSize.WithLabelValues(method, path, status).Observe(float64(size))
		}
		if c.Writer.Status() >= 500 {
			RecordError("server_error", path)
		}
	}
}

// RecordCacheHit counts a cache hit
func RecordCacheHit(cacheName string) {
	metrics.RecordCacheLookup(cacheName, true)
}

// RecordCacheMiss counts a cache miss
func RecordCacheMiss(cacheName string) {
	metrics.RecordCacheLookup(cacheName, false)
}

// RecordCacheOperation counts and times a cache read or write
func RecordCacheOperation(operation, cacheName string, duration time.Duration) {
	m := metrics.Get()
	m.CacheOperationsTotal.WithLabelValues(operation, cacheName).Inc()
	m.CacheOperationDuration.WithLabelValues(operation, cacheName).Observe(duration.Seconds())
}

// RecordCacheEviction counts entries dropped from a cache
func RecordCacheEviction(cacheName string, count int64) {
	metrics.Get().CacheEvictionsTotal.WithLabelValues(cacheName).Add(float64(count))
}

// SetDatabaseConnections reports the open connection count of a pool
func SetDatabaseConnections(database string, count int) {
	metrics.Get().DatabaseConnectionsOpen.WithLabelValues(database).Set(float64(count))
}

// SetRedisConnections reports the open connection count of a Redis pool
func SetRedisConnections(instance string, count int) {
	metrics.Get().RedisConnectionsOpen.WithLabelValues(instance).Set(float64(count))
}

// RecordError counts an error by type and route
func RecordError(errorType, endpoint string) {
	metrics.Get().ErrorsTotal.WithLabelValues(errorType, endpoint).Inc()
}
