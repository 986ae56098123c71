package middleware

import (
	stderrors "errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/daybook/internal/auth"
	"github.com/zfogg/daybook/internal/errors"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/util"
	"go.uber.org/zap"
)

// BearerToken extracts the token from an "Authorization: Bearer <token>" header
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// AuthMiddleware requires a valid access token and loads the user into the context
func AuthMiddleware(validator auth.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c)
		if token == "" {
			util.RespondUnauthorized(c, "missing bearer token")
			return
		}

		claims, err := validator.ValidateAccessToken(token)
		if err != nil {
			var apiErr *errors.APIError
			if stderrors.As(err, &apiErr) {
				util.RespondWithAPIError(c, apiErr)
				return
			}
			util.RespondUnauthorized(c, "invalid token")
			return
		}

		user, err := validator.GetUser(c.Request.Context(), claims.UserID)
		if err != nil {
			logger.Log.Debug("Token for unknown user",
				logger.WithUserID(claims.UserID),
				zap.Error(err),
			)
			util.RespondUnauthorized(c, "user no longer exists")
			return
		}

		c.Set(util.ContextUserIDKey, user.ID)
		c.Set(util.ContextUserKey, user)
		c.Next()
	}
}
