package dto

import (
	"time"

	"github.com/zfogg/daybook/internal/models"
)

// UserResponse is the account representation returned to its owner
type UserResponse struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	Username         string     `json:"username"`
	DisplayName      string     `json:"display_name"`
	Timezone         string     `json:"timezone"`
	IsAdmin          bool       `json:"is_admin"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	HasPassword      bool       `json:"has_password"`
	GoogleLinked     bool       `json:"google_linked"`
	LastActiveAt     *time.Time `json:"last_active_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// ToUserResponse converts models.User to UserResponse (excludes secrets)
func ToUserResponse(user *models.User) *UserResponse {
	if user == nil {
		return nil
	}

	return &UserResponse{
		ID:               user.ID,
		Email:            user.Email,
		Username:         user.Username,
		DisplayName:      user.DisplayName,
		Timezone:         user.Timezone,
		IsAdmin:          user.IsAdmin,
		TwoFactorEnabled: user.TwoFactorEnabled,
		HasPassword:      user.HasPassword(),
		GoogleLinked:     user.GoogleID != nil,
		LastActiveAt:     user.LastActiveAt,
		CreatedAt:        user.CreatedAt,
	}
}

// RegisterRequest for native registration
type RegisterRequest struct {
	Email       string `json:"email" binding:"required,email,max=254"`
	Username    string `json:"username" binding:"required,min=3,max=30,alphanum"`
	Password    string `json:"password" binding:"required,min=8,max=72"`
	DisplayName string `json:"display_name" binding:"required,min=1,max=50"`
	Timezone    string `json:"timezone" binding:"omitempty,timezone"`
}

// LoginRequest is the password login body. OTPCode is a TOTP or backup code.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	OTPCode  string `json:"otp_code" binding:"omitempty,max=16"`
}

// RefreshRequest carries an opaque refresh token
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// UpdateProfileRequest for profile updates
type UpdateProfileRequest struct {
	DisplayName *string `json:"display_name,omitempty" binding:"omitempty,min=1,max=50"`
	Timezone    *string `json:"timezone,omitempty" binding:"omitempty,timezone"`
}

// ChangePasswordRequest for authenticated password changes
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required,min=8,max=72"`
}

// PasswordResetRequest starts the reset flow
type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// PasswordResetConfirmRequest completes the reset flow
type PasswordResetConfirmRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=72"`
}

// TwoFactorSetupRequest re-confirms the password before issuing a secret
type TwoFactorSetupRequest struct {
	Password string `json:"password"`
}

// TwoFactorCodeRequest carries a TOTP code
type TwoFactorCodeRequest struct {
	Code string `json:"code" binding:"required,min=6,max=16"`
}

// TwoFactorDisableRequest needs the password plus a TOTP or backup code
type TwoFactorDisableRequest struct {
	Password string `json:"password"`
	Code     string `json:"code" binding:"required,min=6,max=16"`
}
