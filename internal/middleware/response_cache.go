package middleware

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/daybook/internal/cache"
	"github.com/zfogg/daybook/internal/events"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/util"
	"go.uber.org/zap"
)

// ResponseCache caches successful GET responses per user. Every change a user
// makes bumps their version, which retires all their cached responses at once.
type ResponseCache struct {
	store cache.Store
	name  string
}

// NewResponseCache creates a response cache; a nil store disables it
func NewResponseCache(store cache.Store, name string) *ResponseCache {
	return &ResponseCache{store: store, name: name}
}

// Middleware caches the route's 2xx responses for ttl. It must run after
// AuthMiddleware; anonymous requests are never cached. Adds X-Cache: HIT/MISS.
func (rc *ResponseCache) Middleware(ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(util.ContextUserIDKey)
		if rc == nil || rc.store == nil || c.Request.Method != http.MethodGet || userID == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		version, ok := rc.version(ctx, userID)
		if !ok {
			c.Next()
			return
		}
		cacheKey := generateCacheKey(rc.name, userID, version, c.Request.URL.Path, c.Request.URL.RawQuery)

		startTime := time.Now()
		cachedData, err := rc.store.Get(ctx, cacheKey)
		RecordCacheOperation("GET", rc.name, time.Since(startTime))
		if err == nil {
			RecordCacheHit(rc.name)
			c.Header("X-Cache", "HIT")
			c.Header("Cache-Control", fmt.Sprintf("private, max-age=%d", int(ttl.Seconds())))
			c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(cachedData))
			c.Abort()
			return
		}
		RecordCacheMiss(rc.name)

		writer := &cachedResponseWriter{
			ResponseWriter: c.Writer,
			statusCode:     http.StatusOK,
			body:           &bytes.Buffer{},
		}
		c.Writer = writer
		c.Header("X-Cache", "MISS")
		c.Header("Cache-Control", fmt.Sprintf("private, max-age=%d", int(ttl.Seconds())))

		c.Next()

		if writer.statusCode < 200 || writer.statusCode >= 300 || writer.body.Len() == 0 {
			return
		}
		setStartTime := time.Now()
		if err := rc.store.SetEx(ctx, cacheKey, writer.body.String(), ttl); err != nil {
			logger.Log.Debug("Failed to write response to cache",
				zap.String("key", cacheKey),
				zap.Error(err),
			)
			return
		}
		RecordCacheOperation("SET", rc.name, time.Since(setStartTime))
	}
}

// Invalidate retires every cached response of the user
func (rc *ResponseCache) Invalidate(ctx context.Context, userID string) {
	if rc == nil || rc.store == nil || userID == "" {
		return
	}
	if _, err := rc.store.Incr(ctx, rc.versionKey(userID)); err != nil {
		logger.Log.Warn("Failed to invalidate response cache",
			logger.WithUserID(userID),
			zap.Error(err),
		)
		return
	}
	RecordCacheEviction(rc.name, 1)
}

// OnChange implements events.Listener
func (rc *ResponseCache) OnChange(ctx context.Context, change events.Change) {
	rc.Invalidate(ctx, change.UserID)
}

func (rc *ResponseCache) version(ctx context.Context, userID string) (string, bool) {
	v, err := rc.store.Get(ctx, rc.versionKey(userID))
	switch {
	case err == nil:
		return v, true
	case stderrors.Is(err, cache.ErrMiss):
		return "0", true
	default:
		logger.Log.Debug("Response cache unavailable", zap.Error(err))
		return "", false
	}
}

func (rc *ResponseCache) versionKey(userID string) string {
	return fmt.Sprintf("response:%s:version:%s", rc.name, userID)
}

// generateCacheKey creates a cache key from the cache name, user, version and request
func generateCacheKey(name, userID, version, path, query string) string {
	key := fmt.Sprintf("response:%s:%s:%s:%s", name, userID, version, path)
	if query != "" {
		key = fmt.Sprintf("%s?%s", key, query)
	}
	return key
}

// cachedResponseWriter intercepts response writes to capture the response body
type cachedResponseWriter struct {
	gin.ResponseWriter
	statusCode int
	body       *bytes.Buffer
}

// Write writes data to the response while capturing it for caching
func (w *cachedResponseWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

// WriteHeader records the HTTP status code
func (w *cachedResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
