package repository

import (
	"context"
	"time"

	"github.com/zfogg/daybook/internal/models"
	"gorm.io/gorm"
)

// UserRepository handles all database operations for users
type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	TouchLastActive(ctx context.Context, userID string, at time.Time) error
	SetAdmin(ctx context.Context, email string, admin bool) (*models.User, error)
	GetTotalUserCount(ctx context.Context) (int64, error)
	CountAdmins(ctx context.Context) (int64, error)
}

// userRepository implements UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// CreateUser creates a new user
func (r *userRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user == nil {
		return ErrInvalidInput
	}

	return translate(r.db.WithContext(ctx).Create(user).Error)
}

// GetUser gets a user by ID
func (r *userRepository) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// GetUserByEmail gets a user by email (case-insensitive)
func (r *userRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("LOWER(email) = LOWER(?)", email).
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// GetUserByUsername gets a user by username (case-insensitive)
func (r *userRepository) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("LOWER(username) = LOWER(?)", username).
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// GetUserByGoogleID gets the user linked to a Google account
func (r *userRepository) GetUserByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("google_id = ?", googleID).First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// UpdateUser updates a user
func (r *userRepository) UpdateUser(ctx context.Context, user *models.User) error {
	if user == nil || user.ID == "" {
		return ErrInvalidInput
	}

	return translate(r.db.WithContext(ctx).Save(user).Error)
}

// TouchLastActive records activity without bumping updated_at
func (r *userRepository) TouchLastActive(ctx context.Context, userID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		UpdateColumn("last_active_at", at).Error
}

// SetAdmin grants or revokes admin by email
func (r *userRepository) SetAdmin(ctx context.Context, email string, admin bool) (*models.User, error) {
	user, err := r.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := r.db.WithContext(ctx).Model(user).Update("is_admin", admin).Error; err != nil {
		return nil, err
	}
	user.IsAdmin = admin
	return user, nil
}

// GetTotalUserCount gets the total number of users
func (r *userRepository) GetTotalUserCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error
	return count, err
}

// CountAdmins gets the number of users with admin rights
func (r *userRepository) CountAdmins(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("is_admin = ?", true).Count(&count).Error
	return count, err
}
