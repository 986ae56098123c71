package auth

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/zfogg/daybook/internal/dto"
	"github.com/zfogg/daybook/internal/errors"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/models"
	"github.com/zfogg/daybook/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

const passwordResetTTL = time.Hour

var (
	ErrUserExists          = errors.New(errors.ErrAlreadyExists, "an account with this email already exists")
	ErrUsernameExists      = errors.New(errors.ErrAlreadyExists, "username already taken")
	ErrInvalidCredentials  = errors.Unauthorized("invalid email or password")
	ErrNoPassword          = errors.Unauthorized("this account signs in with Google")
	ErrTwoFactorRequired   = errors.TwoFactorRequired()
	ErrInvalidOTP          = errors.Unauthorized("invalid two-factor code")
	ErrInvalidToken        = errors.Unauthorized("invalid token")
	ErrAccessTokenExpired  = errors.TokenExpired()
	ErrInvalidRefreshToken = errors.Unauthorized("invalid refresh token")
	ErrRefreshTokenExpired = errors.Unauthorized("refresh token expired")
	ErrRefreshTokenReused  = errors.Unauthorized("refresh token already used; all sessions in this family were revoked")
	ErrInvalidResetToken   = errors.BadRequest("invalid or expired reset token")
	ErrWrongPassword       = errors.ValidationError("current_password", "current password is incorrect")
	ErrInvalidTimezone     = errors.ValidationError("timezone", "timezone must be an IANA name such as Europe/Berlin")
)

// PasswordResetMailer delivers password reset links
type PasswordResetMailer interface {
	SendPasswordResetEmail(ctx context.Context, toEmail, displayName, resetToken string) error
}

// Options configures a Service
type Options struct {
	JWTSecret       []byte
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	Google          *oauth2.Config
	Mailer          PasswordResetMailer
	// BcryptCost defaults to bcrypt.DefaultCost; tests lower it
	BcryptCost int
}

// AuthResult is a signed-in user with their tokens
type AuthResult struct {
	User   *dto.UserResponse `json:"user"`
	Tokens *TokenPair        `json:"tokens"`
}

// Service handles all authentication operations
type Service struct {
	users  repository.UserRepository
	tokens repository.TokenRepository

	jwtSecret  []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	bcryptCost int

	googleConfig *oauth2.Config
	mailer       PasswordResetMailer
	fetchGoogle  func(ctx context.Context, code string) (*GoogleUserInfo, error)

	now func() time.Time
}

// NewService creates a new authentication service
func NewService(db *gorm.DB, opts Options) *Service {
	if opts.AccessTokenTTL <= 0 {
		opts.AccessTokenTTL = 15 * time.Minute
	}
	if opts.RefreshTokenTTL <= 0 {
		opts.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}

	s := &Service{
		users:        repository.NewUserRepository(db),
		tokens:       repository.NewTokenRepository(db),
		jwtSecret:    opts.JWTSecret,
		accessTTL:    opts.AccessTokenTTL,
		refreshTTL:   opts.RefreshTokenTTL,
		bcryptCost:   opts.BcryptCost,
		googleConfig: opts.Google,
		mailer:       opts.Mailer,
		now:          func() time.Time { return time.Now().UTC() },
	}
	s.fetchGoogle = s.getGoogleUserInfo
	return s
}

// Register creates a password account and signs it in
func (s *Service) Register(ctx context.Context, req dto.RegisterRequest, meta ClientMeta) (*AuthResult, error) {
	email := normalizeEmail(req.Email)

	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrUserExists
	} else if !stderrors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	if _, err := s.users.GetUserByUsername(ctx, req.Username); err == nil {
		return nil, ErrUsernameExists
	} else if !stderrors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("database error: %w", err)
	}

	tz := req.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return nil, ErrInvalidTimezone
	}

	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        email,
		Username:     strings.TrimSpace(req.Username),
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Timezone:     tz,
		PasswordHash: &hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if stderrors.Is(err, repository.ErrDuplicate) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logger.Log.Info("User registered", logger.WithUserID(user.ID), zap.String("username", user.Username))
	return s.signIn(ctx, user, meta)
}

// Login authenticates with email and password. When two-factor is enabled the
// OTP code (or a backup code) is required as well.
func (s *Service) Login(ctx context.Context, req dto.LoginRequest, meta ClientMeta) (*AuthResult, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(req.Email))
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if !user.HasPassword() {
		return nil, ErrNoPassword
	}
	if !verifyPassword(*user.PasswordHash, req.Password) {
		return nil, ErrInvalidCredentials
	}

	if user.TwoFactorEnabled {
		if strings.TrimSpace(req.OTPCode) == "" {
			return nil, ErrTwoFactorRequired
		}
		ok, err := s.verifySecondFactor(ctx, user, req.OTPCode)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrInvalidOTP
		}
	}

	return s.signIn(ctx, user, meta)
}

// Refresh rotates a refresh token. Presenting a token that was already rotated
// or revoked revokes every token in its family.
func (s *Service) Refresh(ctx context.Context, refreshToken string, meta ClientMeta) (*AuthResult, error) {
	record, err := s.tokens.GetRefreshTokenByHash(ctx, hashToken(refreshToken))
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	now := s.now()
	if record.RevokedAt != nil {
		revoked, rerr := s.tokens.RevokeFamily(ctx, record.FamilyID, now)
		if rerr != nil {
			return nil, fmt.Errorf("failed to revoke token family: %w", rerr)
		}
		logger.Log.Warn("Refresh token reuse detected",
			logger.WithUserID(record.UserID),
			zap.String("family_id", record.FamilyID),
			zap.Int64("revoked", revoked),
			logger.WithIP(meta.IP),
		)
		return nil, ErrRefreshTokenReused
	}
	if !record.IsActive(now) {
		return nil, ErrRefreshTokenExpired
	}

	user, err := s.users.GetUser(ctx, record.UserID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	pair, next, err := s.issuePair(user, record.FamilyID, meta)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Rotate(ctx, record, next, now); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			// lost a race with a concurrent refresh of the same token
			_, _ = s.tokens.RevokeFamily(ctx, record.FamilyID, now)
			return nil, ErrRefreshTokenReused
		}
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	_ = s.users.TouchLastActive(ctx, user.ID, now)
	return &AuthResult{User: dto.ToUserResponse(user), Tokens: pair}, nil
}

// Logout revokes one refresh token. Unknown tokens are ignored.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	record, err := s.tokens.GetRefreshTokenByHash(ctx, hashToken(refreshToken))
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("database error: %w", err)
	}
	return s.tokens.RevokeRefreshToken(ctx, record.ID, s.now())
}

// LogoutAll revokes every refresh token the user holds
func (s *Service) LogoutAll(ctx context.Context, userID string) (int64, error) {
	return s.tokens.RevokeAllForUser(ctx, userID, s.now())
}

// GetUser loads a user by id
func (s *Service) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.users.GetUser(ctx, userID)
}

// UpdateProfile changes display name and timezone
func (s *Service) UpdateProfile(ctx context.Context, userID string, req dto.UpdateProfileRequest) (*models.User, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if name == "" {
			return nil, errors.ValidationError("display_name", "display_name must not be blank")
		}
		user.DisplayName = name
	}
	if req.Timezone != nil {
		if _, err := time.LoadLocation(*req.Timezone); err != nil || *req.Timezone == "" {
			return nil, ErrInvalidTimezone
		}
		user.Timezone = *req.Timezone
	}

	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// ChangePassword verifies the current password, stores the new one and ends all sessions
func (s *Service) ChangePassword(ctx context.Context, userID string, req dto.ChangePasswordRequest) error {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.HasPassword() || !verifyPassword(*user.PasswordHash, req.CurrentPassword) {
		return ErrWrongPassword
	}
	return s.setPassword(ctx, user, req.NewPassword)
}

// RequestPasswordReset creates a single-use reset token and mails it. It returns the
// raw token (empty when the email is unknown) so callers never reveal account existence.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.users.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("database error: %w", err)
	}

	raw, err := randomToken(32)
	if err != nil {
		return "", err
	}
	reset := &models.PasswordReset{
		UserID:    user.ID,
		TokenHash: hashToken(raw),
		ExpiresAt: s.now().Add(passwordResetTTL),
	}
	if err := s.tokens.CreatePasswordReset(ctx, reset); err != nil {
		return "", fmt.Errorf("failed to create reset token: %w", err)
	}

	if s.mailer != nil {
		if err := s.mailer.SendPasswordResetEmail(ctx, user.Email, user.DisplayName, raw); err != nil {
			logger.Log.Error("Failed to send password reset email", logger.WithUserID(user.ID), zap.Error(err))
		}
	} else {
		logger.Log.Warn("Password reset requested but email is not configured", logger.WithUserID(user.ID))
	}

	return raw, nil
}

// ResetPassword consumes a reset token and sets a new password
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	reset, err := s.tokens.GetPasswordResetByHash(ctx, hashToken(token))
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("database error: %w", err)
	}
	if reset.Used || !s.now().Before(reset.ExpiresAt) {
		return ErrInvalidResetToken
	}

	consumed, err := s.tokens.MarkPasswordResetUsed(ctx, reset.ID)
	if err != nil {
		return fmt.Errorf("failed to consume reset token: %w", err)
	}
	if !consumed {
		return ErrInvalidResetToken
	}

	user, err := s.users.GetUser(ctx, reset.UserID)
	if err != nil {
		return ErrInvalidResetToken
	}
	return s.setPassword(ctx, user, newPassword)
}

func (s *Service) setPassword(ctx context.Context, user *models.User, password string) error {
	hash, err := s.hashPassword(password)
	if err != nil {
		return err
	}
	user.PasswordHash = &hash
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if _, err := s.tokens.RevokeAllForUser(ctx, user.ID, s.now()); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	logger.Log.Info("Password changed; sessions revoked", logger.WithUserID(user.ID))
	return nil
}

func (s *Service) signIn(ctx context.Context, user *models.User, meta ClientMeta) (*AuthResult, error) {
	pair, err := s.startSession(ctx, user, meta)
	if err != nil {
		return nil, err
	}
	now := s.now()
	user.LastActiveAt = &now
	_ = s.users.TouchLastActive(ctx, user.ID, now)
	return &AuthResult{User: dto.ToUserResponse(user), Tokens: pair}, nil
}

func (s *Service) hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

func verifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
