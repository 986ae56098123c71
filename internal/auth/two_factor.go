package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pquerna/otp/totp"
	"github.com/zfogg/daybook/internal/errors"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/models"
)

const (
	otpIssuer        = "Daybook"
	backupCodeCount  = 10
	backupCodeLength = 8
)

var (
	ErrTwoFactorAlreadyEnabled = errors.New(errors.ErrConflict, "two-factor authentication is already enabled")
	ErrTwoFactorNotSetup       = errors.BadRequest("two-factor setup has not been started")
	ErrTwoFactorNotEnabled     = errors.BadRequest("two-factor authentication is not enabled")
	ErrPasswordRequired        = errors.ValidationError("password", "password is incorrect")
)

// TwoFactorSetup is shown to the user once while enrolling an authenticator
type TwoFactorSetup struct {
	Secret      string   `json:"secret"`
	OTPAuthURL  string   `json:"otpauth_url"`
	BackupCodes []string `json:"backup_codes"`
}

// SetupTwoFactor generates a TOTP secret and backup codes. Two-factor stays off
// until EnableTwoFactor confirms a code from the authenticator.
func (s *Service) SetupTwoFactor(ctx context.Context, userID, password string) (*TwoFactorSetup, error) {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.TwoFactorEnabled {
		return nil, ErrTwoFactorAlreadyEnabled
	}
	// Google-only accounts have no password to confirm
	if user.HasPassword() && !verifyPassword(*user.PasswordHash, password) {
		return nil, ErrPasswordRequired
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      otpIssuer,
		AccountName: user.Email,
		SecretSize:  20,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate 2FA secret: %w", err)
	}

	codes, err := generateBackupCodes(backupCodeCount)
	if err != nil {
		return nil, err
	}

	secret := key.Secret()
	user.TwoFactorSecret = &secret
	user.BackupCodes = hashBackupCodes(codes)
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to save 2FA setup: %w", err)
	}

	return &TwoFactorSetup{
		Secret:      secret,
		OTPAuthURL:  key.URL(),
		BackupCodes: codes,
	}, nil
}

// EnableTwoFactor turns two-factor on after checking a code against the pending secret
func (s *Service) EnableTwoFactor(ctx context.Context, userID, code string) error {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.TwoFactorEnabled {
		return ErrTwoFactorAlreadyEnabled
	}
	if user.TwoFactorSecret == nil || *user.TwoFactorSecret == "" {
		return ErrTwoFactorNotSetup
	}
	if !totp.Validate(strings.TrimSpace(code), *user.TwoFactorSecret) {
		return ErrInvalidOTP
	}

	user.TwoFactorEnabled = true
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to enable 2FA: %w", err)
	}
	logger.Log.Info("Two-factor enabled", logger.WithUserID(user.ID))
	return nil
}

// DisableTwoFactor requires the password (for password accounts) and a TOTP or backup code
func (s *Service) DisableTwoFactor(ctx context.Context, userID, password, code string) error {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled {
		return ErrTwoFactorNotEnabled
	}
	if user.HasPassword() && !verifyPassword(*user.PasswordHash, password) {
		return ErrPasswordRequired
	}
	ok, err := s.verifySecondFactor(ctx, user, code)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidOTP
	}

	user.TwoFactorEnabled = false
	user.TwoFactorSecret = nil
	user.BackupCodes = nil
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("failed to disable 2FA: %w", err)
	}
	logger.Log.Info("Two-factor disabled", logger.WithUserID(user.ID))
	return nil
}

// verifySecondFactor accepts a current TOTP code or consumes a backup code
func (s *Service) verifySecondFactor(ctx context.Context, user *models.User, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if user.TwoFactorSecret != nil && totp.Validate(code, *user.TwoFactorSecret) {
		return true, nil
	}

	hashed := hashBackupCode(code)
	for i, stored := range user.BackupCodes {
		if stored == hashed {
			user.BackupCodes = append(user.BackupCodes[:i:i], user.BackupCodes[i+1:]...)
			if err := s.users.UpdateUser(ctx, user); err != nil {
				return false, fmt.Errorf("failed to consume backup code: %w", err)
			}
			logger.Log.Info("Backup code used", logger.WithUserID(user.ID))
			return true, nil
		}
	}
	return false, nil
}

// generateBackupCodes generates XXXX-XXXX base32 codes
func generateBackupCodes(count int) ([]string, error) {
	codes := make([]string, count)
	for i := range codes {
		b := make([]byte, backupCodeLength)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("failed to generate backup codes: %w", err)
		}
		encoded := base32.StdEncoding.EncodeToString(b)[:backupCodeLength]
		codes[i] = encoded[:4] + "-" + encoded[4:]
	}
	return codes, nil
}

// hashBackupCodes hashes backup codes for secure storage
func hashBackupCodes(codes []string) []string {
	hashed := make([]string, len(codes))
	for i, code := range codes {
		hashed[i] = hashBackupCode(code)
	}
	return hashed
}

// hashBackupCode normalises case and dashes before hashing
func hashBackupCode(code string) string {
	clean := strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(code)), "-", "")
	sum := sha256.Sum256([]byte(clean))
	return hex.EncodeToString(sum[:])
}
