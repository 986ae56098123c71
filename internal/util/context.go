package util

import (
	"github.com/gin-gonic/gin"
	"github.com/zfogg/daybook/internal/models"
)

// Context keys set by the auth middleware
const (
	ContextUserKey   = "user"
	ContextUserIDKey = "user_id"
)

// GetUserFromContext extracts the authenticated user from the Gin context.
// Returns the user and true if found, or nil and false if not authenticated.
// If the user is not authenticated, it automatically responds with 401 Unauthorized.
func GetUserFromContext(c *gin.Context) (*models.User, bool) {
	user, exists := c.Get(ContextUserKey)
	if !exists {
		RespondUnauthorized(c)
		return nil, false
	}
	userPtr, ok := user.(*models.User)
	if !ok {
		RespondInternalError(c, "invalid user data in context")
		return nil, false
	}
	return userPtr, true
}

// GetUserIDFromContext extracts the user ID from the Gin context.
// If the user is not authenticated, it automatically responds with 401 Unauthorized.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	userID, exists := c.Get(ContextUserIDKey)
	if !exists {
		RespondUnauthorized(c)
		return "", false
	}
	userIDStr, ok := userID.(string)
	if !ok || userIDStr == "" {
		RespondInternalError(c, "invalid user ID in context")
		return "", false
	}
	return userIDStr, true
}
