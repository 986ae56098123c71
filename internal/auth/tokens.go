package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/zfogg/daybook/internal/models"
)

const (
	tokenTypeAccess = "access"
	tokenIssuer     = "daybook"
)

// Claims are the access token claims
type Claims struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"is_admin"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

// TokenPair is returned by every successful sign-in
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// ClientMeta identifies the device a refresh token was issued to
type ClientMeta struct {
	UserAgent string
	IP        string
}

// issueAccessToken signs a short-lived HS256 access token
func (s *Service) issueAccessToken(user *models.User) (string, time.Time, error) {
	now := s.now()
	expiresAt := now.Add(s.accessTTL)

	claims := Claims{
		UserID:   user.ID,
		Email:    user.Email,
		Username: user.Username,
		IsAdmin:  user.IsAdmin,
		Type:     tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    tokenIssuer,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateAccessToken verifies signature, expiry and token type.
// Expired tokens return ErrAccessTokenExpired so clients know to refresh.
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrAccessTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.Type != tokenTypeAccess || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// issuePair creates an access token plus a new refresh token in familyID
// (a fresh family when familyID is empty). The refresh record is returned unsaved.
func (s *Service) issuePair(user *models.User, familyID string, meta ClientMeta) (*TokenPair, *models.RefreshToken, error) {
	access, accessExp, err := s.issueAccessToken(user)
	if err != nil {
		return nil, nil, err
	}

	raw, err := randomToken(32)
	if err != nil {
		return nil, nil, err
	}

	id := uuid.New().String()
	if familyID == "" {
		familyID = id
	}
	refreshExp := s.now().Add(s.refreshTTL)

	record := &models.RefreshToken{
		ID:        id,
		UserID:    user.ID,
		FamilyID:  familyID,
		TokenHash: hashToken(raw),
		ExpiresAt: refreshExp,
		UserAgent: truncate(meta.UserAgent, 255),
		IP:        truncate(meta.IP, 64),
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     raw,
		TokenType:        "Bearer",
		ExpiresAt:        accessExp,
		RefreshExpiresAt: refreshExp,
	}, record, nil
}

// startSession issues a pair in a new family and stores the refresh token
func (s *Service) startSession(ctx context.Context, user *models.User, meta ClientMeta) (*TokenPair, error) {
	pair, record, err := s.issuePair(user, "", meta)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.CreateRefreshToken(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}
	return pair, nil
}

// randomToken returns n random bytes as unpadded base64url
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// hashToken is the lookup key stored for opaque tokens
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
