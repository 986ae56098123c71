package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// maxRequestIDLength bounds client-supplied ids before they reach logs and headers
const maxRequestIDLength = 128

// RequestIDMiddleware adds a unique request ID to each request.
// A well-formed X-Request-ID from the client is kept; otherwise a UUID is generated.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if !validRequestID(requestID) {
			requestID = uuid.New().String()
		}

		c.Set("request_id", requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.' || r == ':':
		default:
			return false
		}
	}
	return true
}
