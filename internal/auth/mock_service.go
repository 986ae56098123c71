package auth

import (
	"context"
	"sync"

	"github.com/zfogg/daybook/internal/models"
	"github.com/zfogg/daybook/internal/repository"
)

// MockCall records a method call for assertion
type MockCall struct {
	Method string
	Args   []interface{}
}

// MockTokenValidator is a TokenValidator for middleware and websocket tests.
// Tokens map straight to users; unknown tokens are invalid.
type MockTokenValidator struct {
	mu sync.Mutex

	Calls []MockCall

	ValidateAccessTokenFunc func(tokenString string) (*Claims, error)
	GetUserFunc             func(ctx context.Context, userID string) (*models.User, error)

	// Tokens maps an access token string to its user
	Tokens map[string]*models.User
}

// NewMockTokenValidator creates an empty mock
func NewMockTokenValidator() *MockTokenValidator {
	return &MockTokenValidator{
		Calls:  make([]MockCall, 0),
		Tokens: make(map[string]*models.User),
	}
}

func (m *MockTokenValidator) recordCall(method string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, MockCall{Method: method, Args: args})
}

// AddToken makes token resolve to user
func (m *MockTokenValidator) AddToken(token string, user *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tokens[token] = user
}

func (m *MockTokenValidator) ValidateAccessToken(tokenString string) (*Claims, error) {
	m.recordCall("ValidateAccessToken", tokenString)
	if m.ValidateAccessTokenFunc != nil {
		return m.ValidateAccessTokenFunc(tokenString)
	}

	m.mu.Lock()
	user, ok := m.Tokens[tokenString]
	m.mu.Unlock()
	if !ok {
		return nil, ErrInvalidToken
	}
	return &Claims{
		UserID:   user.ID,
		Email:    user.Email,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
		Type:     tokenTypeAccess,
	}, nil
}

func (m *MockTokenValidator) GetUser(ctx context.Context, userID string) (*models.User, error) {
	m.recordCall("GetUser", userID)
	if m.GetUserFunc != nil {
		return m.GetUserFunc(ctx, userID)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.Tokens {
		if user.ID == userID {
			return user, nil
		}
	}
	return nil, repository.ErrNotFound
}

var _ TokenValidator = (*MockTokenValidator)(nil)
