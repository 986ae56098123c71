package middleware

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/daybook/internal/cache"
	"github.com/zfogg/daybook/internal/logger"
	"go.uber.org/zap"
)

// StoreRateLimitMiddleware is a fixed-window limiter kept in a shared store, so the
// limit holds across instances. With a nil store, or when the store fails, the
// request is judged by the in-memory limiter instead.
func StoreRateLimitMiddleware(store cache.Store, config RateLimitConfig) gin.HandlerFunc {
	config = config.withDefaults()
	fallback := NewRateLimiter(config)
	now := time.Now

	return func(c *gin.Context) {
		if store == nil {
			fallback(c)
			return
		}

		t := now()
		window := t.Truncate(config.Window)
		key := fmt.Sprintf("rate_limit:%s:%s:%d", config.Name, config.KeyFunc(c), window.Unix())
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		count, err := store.Incr(ctx, key)
		if err != nil {
			logger.Log.Warn("Rate limit store unavailable, using in-memory limiter",
				logger.WithIP(c.ClientIP()),
				zap.Error(err),
			)
			fallback(c)
			return
		}

		if count == 1 {
			if err := store.Expire(ctx, key, config.Window); err != nil {
				logger.Log.Warn("Failed to set rate limit expiration",
					logger.WithIP(c.ClientIP()),
					zap.Error(err),
				)
			}
		}

		if count > int64(config.Limit) {
			retryAfter := int(window.Add(config.Window).Sub(t).Seconds()) + 1
			logger.Log.Warn("Rate limit exceeded",
				logger.WithIP(c.ClientIP()),
				zap.String("limiter", config.Name),
				zap.Int("max_requests", config.Limit),
				zap.Int64("current_requests", count),
			)
			rejectRateLimited(c, config, retryAfter)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(config.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(config.Limit-int(count)))
		c.Next()
	}
}

// RateLimitSmartAuth limits auth endpoints through the shared store when there is one
func RateLimitSmartAuth(store cache.Store) gin.HandlerFunc {
	return StoreRateLimitMiddleware(store, AuthRateLimitConfig())
}
