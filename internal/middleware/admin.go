package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/util"
)

// RequireAdmin must run after AuthMiddleware. The user loaded there is fresh
// from the database, so a revoked admin flag takes effect immediately.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := util.GetUserFromContext(c)
		if !ok {
			c.Abort()
			return
		}

		if !user.IsAdmin {
			logger.Log.Warn("Admin route denied",
				logger.WithUserID(user.ID),
				logger.WithIP(c.ClientIP()),
			)
			util.RespondForbidden(c, "admin access required")
			return
		}

		c.Next()
	}
}
