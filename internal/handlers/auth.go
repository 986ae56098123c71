package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/zfogg/daybook/internal/auth"
	"github.com/zfogg/daybook/internal/dto"
	"github.com/zfogg/daybook/internal/errors"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/metrics"
	"github.com/zfogg/daybook/internal/util"
	"go.uber.org/zap"
)

const (
	oauthStateCookie = "daybook_oauth_state"
	oauthStateMaxAge = 600
)

var errInvalidOAuthState = errors.Unauthorized("invalid OAuth state")

// AuthHandlers serves the account endpoints
type AuthHandlers struct {
	auth          *auth.Service
	secureCookies bool
}

// NewAuthHandlers creates auth handlers. secureCookies marks the OAuth state cookie Secure.
func NewAuthHandlers(authService *auth.Service, secureCookies bool) *AuthHandlers {
	return &AuthHandlers{auth: authService, secureCookies: secureCookies}
}

func recordAuth(event string, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	metrics.RecordAuthEvent(event, status)
}

func clientMeta(c *gin.Context) auth.ClientMeta {
	return auth.ClientMeta{
		UserAgent: c.Request.UserAgent(),
		IP:        c.ClientIP(),
	}
}

// Register creates a password account
// POST /api/v1/auth/register
func (h *AuthHandlers) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBindError(c, err)
		return
	}

	result, err := h.auth.Register(c.Request.Context(), req, clientMeta(c))
	recordAuth("register", err)
	if err != nil {
		util.RespondServiceError(c, err, "user")
		return
	}

	logger.Log.Info("User registered", logger.WithUserID(result.User.ID), logger.WithIP(c.ClientIP()))
	util.RespondCreated(c, result)
}

// Login signs in with email and password, plus a second factor when enabled
// POST /api/v1/auth/login
func (h *AuthHandlers) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBindError(c, err)
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req, clientMeta(c))
	recordAuth("login", err)
	if err != nil {
		util.RespondServiceError(c, err, "user")
		return
	}
	util.RespondOK(c, result)
}

// Refresh rotates a refresh token
// POST /api/v1/auth/refresh
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req dto.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBindError(c, err)
		return
	}

	result, err := h.auth.Refresh(c.Request.Context(), req.RefreshToken, clientMeta(c))
	recordAuth("refresh", err)
	if err != nil {
		util.RespondServiceError(c, err, "refresh token")
		return
	}
	util.RespondOK(c, result)
}

// Logout revokes one refresh token
// POST /api/v1/auth/logout
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req dto.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBindError(c, err)
		return
	}

	if err := h.auth.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		util.RespondServiceError(c, err, "refresh token")
		return
	}
	util.RespondOK(c, gin.H{"message": "logged out"})
}

// LogoutAll revokes every refresh token of the current user
// POST /api/v1/auth/logout-all
func (h *AuthHandlers) LogoutAll(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	revoked, err := h.auth.LogoutAll(c.Request.Context(), userID)
	if err != nil {
		util.RespondServiceError(c, err, "refresh token")
		return
	}
	util.RespondOK(c, gin.H{"message": "logged out everywhere", "revoked": revoked})
}

// Me returns the current user
// GET /api/v1/auth/me
func (h *AuthHandlers) Me(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	util.RespondOK(c, dto.ToUserResponse(user))
}

// UpdateMe changes the display name or timezone
// PATCH /api/v1/auth/me
func (h *AuthHandlers) UpdateMe(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req dto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBindError(c, err)
		return
	}

	user, err := h.auth.UpdateProfile(c.Request.Context(), userID, req)
	if err != nil {
		util.RespondServiceError(c, err, "user")
		return
	}
	util.RespondOK(c, dto.ToUserResponse(user))
}

// ChangePassword sets a new password and signs out every session
// POST /api/v1/auth/password
func (h *AuthHandlers) ChangePassword(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBindError(c, err)
		return
	}

	if err := h.auth.ChangePassword(c.Request.Context(), userID, req); err != nil {
		util.RespondServiceError(c, err, "user")
		return
	}
	util.RespondOK(c, gin.H{"message": "password changed"})
}

// RequestPasswordReset mails a reset link. The answer is the same whether or not the account exists.
// POST /api/v1/auth/password-reset
func (h *AuthHandlers) RequestPasswordReset(c *gin.Context) {
	var req dto.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBindError(c, err)
		return
	}

	if _, err := h.auth.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		logger.Log.Error("Password reset request failed", zap.Error(err))
	}
	util.RespondStatus(c, http.StatusAccepted, gin.H{
		"message": "if an account exists for that email, a reset link has been sent",
	})
}

// ConfirmPasswordReset consumes a reset token
// POST /api/v1/auth/password-reset/confirm
func (h *AuthHandlers) ConfirmPasswordReset(c *gin.Context) {
	var req dto.PasswordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBindError(c, err)
		return
	}

	err := h.auth.ResetPassword(c.Request.Context(), req.Token, req.NewPassword)
	recordAuth("password_reset", err)
	if err != nil {
		util.RespondServiceError(c, err, "reset token")
		return
	}
	util.RespondOK(c, gin.H{"message": "password has been reset"})
}

// GoogleLogin redirects to Google's consent screen
// GET /api/v1/auth/google
func (h *AuthHandlers) GoogleLogin(c *gin.Context) {
	state := uuid.New().String()
	url, err := h.auth.GoogleAuthURL(state)
	if err != nil {
		util.RespondServiceError(c, err, "oauth")
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(oauthStateCookie, state, oauthStateMaxAge, "/", "", h.secureCookies, true)
	c.Redirect(http.StatusTemporaryRedirect, url)
}

// GoogleCallback finishes Google sign-in
// GET /api/v1/auth/google/callback
func (h *AuthHandlers) GoogleCallback(c *gin.Context) {
	if msg := c.Query("error"); msg != "" {
		util.RespondUnauthorized(c, "Google sign-in was cancelled: "+msg)
		return
	}

	expected, err := c.Cookie(oauthStateCookie)
	state := c.Query("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(state)) != 1 {
		util.RespondWithAPIError(c, errInvalidOAuthState)
		return
	}
	c.SetCookie(oauthStateCookie, "", -1, "/", "", h.secureCookies, true)

	code := c.Query("code")
	if code == "" {
		util.RespondValidationError(c, "code", "code is required")
		return
	}

	result, err := h.auth.HandleGoogleCallback(c.Request.Context(), code, clientMeta(c))
	recordAuth("google", err)
	if err != nil {
		util.RespondServiceError(c, err, "user")
		return
	}
	util.RespondOK(c, result)
}

// SetupTwoFactor issues a TOTP secret and backup codes
// POST /api/v1/auth/2fa/setup
func (h *AuthHandlers) SetupTwoFactor(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req dto.TwoFactorSetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBindError(c, err)
		return
	}

	setup, err := h.auth.SetupTwoFactor(c.Request.Context(), userID, req.Password)
	if err != nil {
		util.RespondServiceError(c, err, "user")
		return
	}
	util.RespondOK(c, setup)
}

// EnableTwoFactor confirms the authenticator and turns two-factor on
// POST /api/v1/auth/2fa/enable
func (h *AuthHandlers) EnableTwoFactor(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req dto.TwoFactorCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBindError(c, err)
		return
	}

	if err := h.auth.EnableTwoFactor(c.Request.Context(), userID, req.Code); err != nil {
		util.RespondServiceError(c, err, "user")
		return
	}
	util.RespondOK(c, gin.H{"two_factor_enabled": true})
}

// DisableTwoFactor turns two-factor off
// POST /api/v1/auth/2fa/disable
func (h *AuthHandlers) DisableTwoFactor(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req dto.TwoFactorDisableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBindError(c, err)
		return
	}

	if err := h.auth.DisableTwoFactor(c.Request.Context(), userID, req.Password, req.Code); err != nil {
		util.RespondServiceError(c, err, "user")
		return
	}
	util.RespondOK(c, gin.H{"two_factor_enabled": false})
}
