package auth

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/zfogg/daybook/internal/errors"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/models"
	"github.com/zfogg/daybook/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"

var (
	ErrOAuthNotConfigured = errors.ServiceUnavailable("Google sign-in")
	ErrOAuthExchange      = errors.Unauthorized("Google sign-in failed")
	ErrEmailNotVerified   = errors.Unauthorized("Google account email is not verified")
)

// GoogleUserInfo is the OpenID Connect userinfo response
type GoogleUserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

// GoogleAuthURL builds the consent URL for state
func (s *Service) GoogleAuthURL(state string) (string, error) {
	if s.googleConfig == nil {
		return "", ErrOAuthNotConfigured
	}
	return s.googleConfig.AuthCodeURL(state, oauth2.AccessTypeOnline), nil
}

// HandleGoogleCallback exchanges the authorization code and signs the user in
func (s *Service) HandleGoogleCallback(ctx context.Context, code string, meta ClientMeta) (*AuthResult, error) {
	if s.googleConfig == nil && s.fetchGoogle == nil {
		return nil, ErrOAuthNotConfigured
	}
	info, err := s.fetchGoogle(ctx, code)
	if err != nil {
		var apiErr *errors.APIError
		if stderrors.As(err, &apiErr) {
			return nil, err
		}
		logger.Log.Warn("Google code exchange failed", zap.Error(err))
		return nil, ErrOAuthExchange
	}
	return s.loginWithGoogleProfile(ctx, info, meta)
}

// loginWithGoogleProfile finds the account linked to the Google subject, links an
// existing account with the same verified email, or creates a new one.
func (s *Service) loginWithGoogleProfile(ctx context.Context, info *GoogleUserInfo, meta ClientMeta) (*AuthResult, error) {
	if info.Sub == "" || info.Email == "" {
		return nil, ErrOAuthExchange
	}
	if !info.EmailVerified {
		return nil, ErrEmailNotVerified
	}

	user, err := s.users.GetUserByGoogleID(ctx, info.Sub)
	if err == nil {
		return s.signIn(ctx, user, meta)
	}
	if !stderrors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	email := normalizeEmail(info.Email)
	user, err = s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		sub := info.Sub
		user.GoogleID = &sub
		if err := s.users.UpdateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to link Google account: %w", err)
		}
		logger.Log.Info("Linked Google account", logger.WithUserID(user.ID))
		return s.signIn(ctx, user, meta)
	case !stderrors.Is(err, repository.ErrNotFound):
		return nil, fmt.Errorf("database error: %w", err)
	}

	base := generateUsernameFromName(info.Name)
	if base == "user" {
		base = generateUsernameFromName(strings.SplitN(email, "@", 2)[0])
	}
	username, err := s.ensureUniqueUsername(ctx, base)
	if err != nil {
		return nil, err
	}

	displayName := strings.TrimSpace(info.Name)
	if displayName == "" {
		displayName = username
	}
	sub := info.Sub
	user = &models.User{
		Email:       email,
		Username:    username,
		DisplayName: displayName,
		Timezone:    "UTC",
		GoogleID:    &sub,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logger.Log.Info("User registered with Google", logger.WithUserID(user.ID), zap.String("username", username))
	return s.signIn(ctx, user, meta)
}

// getGoogleUserInfo exchanges the code and fetches the userinfo document
func (s *Service) getGoogleUserInfo(ctx context.Context, code string) (*GoogleUserInfo, error) {
	if s.googleConfig == nil {
		return nil, ErrOAuthNotConfigured
	}
	token, err := s.googleConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	client := s.googleConfig.Client(ctx, token)
	resp, err := client.Get(googleUserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned status %d", resp.StatusCode)
	}

	var info GoogleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	return &info, nil
}

// ensureUniqueUsername appends a counter until the username is free
func (s *Service) ensureUniqueUsername(ctx context.Context, base string) (string, error) {
	username := base
	for counter := 1; counter <= 999; counter++ {
		_, err := s.users.GetUserByUsername(ctx, username)
		if stderrors.Is(err, repository.ErrNotFound) {
			return username, nil
		}
		if err != nil {
			return "", fmt.Errorf("database error: %w", err)
		}
		username = fmt.Sprintf("%s%d", base, counter)
	}
	return "", fmt.Errorf("unable to generate unique username for %q", base)
}

// generateUsernameFromName keeps lowercase letters and digits, at most 20 of them
func generateUsernameFromName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if len(cleaned) < 3 {
		cleaned = "user"
	}
	if len(cleaned) > 20 {
		cleaned = cleaned[:20]
	}
	return cleaned
}
