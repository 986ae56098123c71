package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "daybook"

// Metrics holds the infrastructure collectors: HTTP, caches, limiters and stores.
// Domain counters live in ApplicationMetrics.
type Metrics struct {
	HTTPRequestsTotal    prometheus.CounterVec
	HTTPRequestDuration  prometheus.HistogramVec
	HTTPRequestSize      prometheus.HistogramVec
	HTTPResponseSize     prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.GaugeVec

	CacheHitsTotal         prometheus.CounterVec
	CacheMissesTotal       prometheus.CounterVec
	CacheOperationsTotal   prometheus.CounterVec
	CacheOperationDuration prometheus.HistogramVec
	CacheEvictionsTotal    prometheus.CounterVec

	RateLimitRejectionsTotal prometheus.CounterVec

	DatabaseQueryDuration   prometheus.HistogramVec
	DatabaseQueriesTotal    prometheus.CounterVec
	DatabaseConnectionsOpen prometheus.GaugeVec

	RedisOperationDuration prometheus.HistogramVec
	RedisOperationsTotal   prometheus.CounterVec
	RedisConnectionsOpen   prometheus.GaugeVec

	DashboardBuildDuration prometheus.HistogramVec

	ErrorsTotal prometheus.CounterVec
}

var (
	instance *Metrics
	once     sync.Once

	latencyBuckets = []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5}
	storeBuckets   = []float64{.0001, .0005, .001, .005, .01, .05, .1}
	sizeBuckets    = prometheus.ExponentialBuckets(100, 10, 7)
)

func counter(subsystem, name, help string, labels ...string) prometheus.CounterVec {
	return *promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

func histogram(subsystem, name, help string, buckets []float64, labels ...string) prometheus.HistogramVec {
	return *promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
		Buckets:   buckets,
	}, labels)
}

func gauge(subsystem, name, help string, labels ...string) prometheus.GaugeVec {
	return *promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labels)
}

// Initialize creates and registers the collectors once
func Initialize() *Metrics {
	once.Do(func() {
		instance = &Metrics{
			HTTPRequestsTotal:    counter("http", "requests_total", "API requests by route template and status", "method", "path", "status"),
			HTTPRequestDuration:  histogram("http", "request_duration_seconds", "API request latency", latencyBuckets, "method", "path", "status"),
			HTTPRequestSize:      histogram("http", "request_size_bytes", "Request body size", sizeBuckets, "method", "path"),
			HTTPResponseSize:     histogram("http", "response_size_bytes", "Response body size", sizeBuckets, "method", "path", "status"),
			HTTPRequestsInFlight: gauge("http", "requests_in_flight", "Requests currently being served", "method", "path"),

			CacheHitsTotal:         counter("cache", "hits_total", "Cache hits (dashboard, api response cache)", "cache_name"),
			CacheMissesTotal:       counter("cache", "misses_total", "Cache misses, including unreadable entries", "cache_name"),
			CacheOperationsTotal:   counter("cache", "operations_total", "Cache reads and writes", "operation", "cache_name"),
			CacheOperationDuration: histogram("cache", "operation_duration_seconds", "Cache read and write latency", storeBuckets, "operation", "cache_name"),
			CacheEvictionsTotal:    counter("cache", "evictions_total", "Per-user cache generations dropped after a change", "cache_name"),

			RateLimitRejectionsTotal: counter("ratelimit", "rejections_total", "Requests answered with 429", "limiter", "method"),

			DatabaseQueryDuration:   histogram("db", "query_duration_seconds", "Statement latency by operation and table", latencyBuckets, "operation", "table"),
			DatabaseQueriesTotal:    counter("db", "queries_total", "Statements by operation, table and outcome", "operation", "table", "status"),
			DatabaseConnectionsOpen: gauge("db", "connections_open", "Open connections in the pool", "driver"),

			RedisOperationDuration: histogram("redis", "operation_duration_seconds", "Redis command latency by key prefix", storeBuckets, "operation", "key_pattern"),
			RedisOperationsTotal:   counter("redis", "operations_total", "Redis commands by outcome", "operation", "status"),
			RedisConnectionsOpen:   gauge("redis", "connections_open", "Open connections in the Redis pool", "instance"),

			DashboardBuildDuration: histogram("dashboard", "build_duration_seconds", "Time to serve a dashboard by source", []float64{.005, .01, .025, .05, .1, .25, .5, 1}, "source"),

			ErrorsTotal: counter("", "errors_total", "Server errors by type and route", "error_type", "endpoint"),
		}
	})
	return instance
}

// Get returns the global metrics instance
func Get() *Metrics {
	return Initialize()
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordDatabaseQuery times one statement. Callers pass a nil err for lookups
// that found nothing.
func RecordDatabaseQuery(operation, table string, duration time.Duration, err error) {
	m := Get()
	m.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	m.DatabaseQueriesTotal.WithLabelValues(operation, table, status(err)).Inc()
}

// RecordRedisOperation times one Redis command
func RecordRedisOperation(operation, keyPattern string, duration time.Duration, err error) {
	m := Get()
	m.RedisOperationsTotal.WithLabelValues(operation, status(err)).Inc()
	m.RedisOperationDuration.WithLabelValues(operation, keyPattern).Observe(duration.Seconds())
}

// RecordCacheLookup counts a hit or a miss on cacheName
func RecordCacheLookup(cacheName string, hit bool) {
	if hit {
		Get().CacheHitsTotal.WithLabelValues(cacheName).Inc()
		return
	}
	Get().CacheMissesTotal.WithLabelValues(cacheName).Inc()
}

// RecordDashboardBuild observes a dashboard served from "cache" or "database"
func RecordDashboardBuild(source string, duration time.Duration) {
	Get().DashboardBuildDuration.WithLabelValues(source).Observe(duration.Seconds())
}

// RecordRateLimitRejection counts a 429 from the named limiter
func RecordRateLimitRejection(limiter, method string) {
	Get().RateLimitRejectionsTotal.WithLabelValues(limiter, method).Inc()
}
