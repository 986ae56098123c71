package repository

import (
	"context"
	"time"

	"github.com/zfogg/daybook/internal/models"
	"gorm.io/gorm"
)

// TokenRepository stores refresh tokens and password reset tokens
type TokenRepository interface {
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error)
	// Rotate revokes old and links it to its replacement in one transaction with creating next
	Rotate(ctx context.Context, old *models.RefreshToken, next *models.RefreshToken, at time.Time) error
	RevokeRefreshToken(ctx context.Context, id string, at time.Time) error
	RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error)
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
	DeleteStaleRefreshTokens(ctx context.Context, before time.Time) (int64, error)

	CreatePasswordReset(ctx context.Context, reset *models.PasswordReset) error
	GetPasswordResetByHash(ctx context.Context, hash string) (*models.PasswordReset, error)
	MarkPasswordResetUsed(ctx context.Context, id string) (bool, error)
	DeleteStalePasswordResets(ctx context.Context, before time.Time) (int64, error)
}

type tokenRepository struct {
	db *gorm.DB
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *gorm.DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	return translate(r.db.WithContext(ctx).Create(token).Error)
}

func (r *tokenRepository) GetRefreshTokenByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	var token models.RefreshToken
	if err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(&token).Error; err != nil {
		return nil, translate(err)
	}
	return &token, nil
}

func (r *tokenRepository) Rotate(ctx context.Context, old *models.RefreshToken, next *models.RefreshToken, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(next).Error; err != nil {
			return translate(err)
		}
		// Guard on revoked_at so two concurrent refreshes cannot both rotate the same token
		res := tx.Model(&models.RefreshToken{}).
			Where("id = ? AND revoked_at IS NULL", old.ID).
			Updates(map[string]interface{}{"revoked_at": at, "replaced_by_id": next.ID})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (r *tokenRepository) RevokeRefreshToken(ctx context.Context, id string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Update("revoked_at", at).Error
}

func (r *tokenRepository) RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("family_id = ? AND revoked_at IS NULL", familyID).
		Update("revoked_at", at)
	return res.RowsAffected, res.Error
}

func (r *tokenRepository) RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RefreshToken{}).
		Where("user_id = ? AND revoked_at IS NULL", userID).
		Update("revoked_at", at)
	return res.RowsAffected, res.Error
}

// DeleteStaleRefreshTokens removes tokens that expired or were revoked before the cutoff
func (r *tokenRepository) DeleteStaleRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ? OR (revoked_at IS NOT NULL AND revoked_at < ?)", before, before).
		Delete(&models.RefreshToken{})
	return res.RowsAffected, res.Error
}

func (r *tokenRepository) CreatePasswordReset(ctx context.Context, reset *models.PasswordReset) error {
	return translate(r.db.WithContext(ctx).Create(reset).Error)
}

func (r *tokenRepository) GetPasswordResetByHash(ctx context.Context, hash string) (*models.PasswordReset, error) {
	var reset models.PasswordReset
	if err := r.db.WithContext(ctx).Where("token_hash = ?", hash).First(&reset).Error; err != nil {
		return nil, translate(err)
	}
	return &reset, nil
}

// MarkPasswordResetUsed flips used once; false means it was already consumed
func (r *tokenRepository) MarkPasswordResetUsed(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.PasswordReset{}).
		Where("id = ? AND used = ?", id, false).
		Update("used", true)
	return res.RowsAffected == 1, res.Error
}

func (r *tokenRepository) DeleteStalePasswordResets(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("used = ? OR expires_at < ?", true, before).
		Delete(&models.PasswordReset{})
	return res.RowsAffected, res.Error
}
