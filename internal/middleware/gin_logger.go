package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/util"
	"go.uber.org/zap"
)

// quietPaths are polled by infrastructure and only logged at debug level
var quietPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// GinLoggerMiddleware logs HTTP requests with structured fields, replacing gin.Logger
func GinLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		method := c.Request.Method
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		statusCode := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", method),
			zap.String("path", path),
			zap.String("route", c.FullPath()),
			zap.String("query", query),
			logger.WithIP(c.ClientIP()),
			logger.WithStatus(statusCode),
			zap.Int("response_size", c.Writer.Size()),
			zap.Duration("latency", time.Since(startTime)),
			zap.String("user_agent", c.Request.UserAgent()),
		}
		if requestID := c.GetString("request_id"); requestID != "" {
			fields = append(fields, logger.WithRequestID(requestID))
		}
		if userID := c.GetString(util.ContextUserIDKey); userID != "" {
			fields = append(fields, logger.WithUserID(userID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case statusCode >= 500:
			logger.Log.Error("HTTP request", fields...)
		case statusCode >= 400:
			logger.Log.Warn("HTTP request", fields...)
		case quietPaths[path]:
			logger.Log.Debug("HTTP request", fields...)
		default:
			logger.Log.Info("HTTP request", fields...)
		}
	}
}
