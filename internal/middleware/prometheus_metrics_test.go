package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/zfogg/daybook/internal/metrics"
)

func TestMetricsMiddleware_RouteTemplatesAndNumericStatus(t *testing.T) {
	m := metrics.Initialize()
	m.HTTPRequestsTotal.Reset()

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(MetricsMiddleware())
	router.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	for _, path := range []string{"/items/1", "/items/2", "/boom", "/nowhere"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	// ids collapse into the route template
	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/items/:id", "200")))
	// numeric status labels allow status=~"5.." queries
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/boom", "502")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", unmatchedRoute, "404")))
}

func TestCacheMetrics(t *testing.T) {
	m := metrics.Initialize()
	m.CacheHitsTotal.Reset()
	m.CacheMissesTotal.Reset()
	m.CacheEvictionsTotal.Reset()

	RecordCacheHit("test_cache")
	RecordCacheHit("test_cache")
	RecordCacheMiss("test_cache")
	RecordCacheEviction("test_cache", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("test_cache")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal.WithLabelValues("test_cache")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.CacheEvictionsTotal.WithLabelValues("test_cache")))
}
