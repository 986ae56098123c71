package auth

import (
	"context"

	"github.com/zfogg/daybook/internal/models"
)

// TokenValidator is what the auth middleware and websocket upgrade need from the service
type TokenValidator interface {
	ValidateAccessToken(tokenString string) (*Claims, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
}

// Ensure Service implements TokenValidator
var _ TokenValidator = (*Service)(nil)
