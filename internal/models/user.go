package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a Daybook account. Native (password) and Google sign-in share one row.
type User struct {
	ID          string `gorm:"primaryKey;type:uuid" json:"id"`
	Email       string `gorm:"uniqueIndex;not null" json:"email"`
	Username    string `gorm:"uniqueIndex;not null" json:"username"`
	DisplayName string `gorm:"not null" json:"display_name"`
	Timezone    string `gorm:"type:varchar(64);not null;default:'UTC'" json:"timezone"`

	// Native auth fields
	PasswordHash *string `gorm:"type:text" json:"-"`

	// OAuth fields
	GoogleID *string `gorm:"uniqueIndex" json:"-"`

	// Two-factor fields
	TwoFactorEnabled bool     `gorm:"default:false" json:"two_factor_enabled"`
	TwoFactorSecret  *string  `gorm:"type:text" json:"-"`
	BackupCodes      []string `gorm:"serializer:json;type:text" json:"-"`

	IsAdmin      bool       `gorm:"default:false" json:"is_admin"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`

	// GORM fields
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// HasPassword reports whether the account can sign in with a password
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// RefreshToken is the server-side record of an opaque refresh token.
// Only the SHA-256 of the token is stored. Tokens issued by rotating one another share a FamilyID.
type RefreshToken struct {
	ID           string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID       string     `gorm:"type:uuid;not null;index" json:"user_id"`
	FamilyID     string     `gorm:"type:uuid;not null;index" json:"family_id"`
	TokenHash    string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	ExpiresAt    time.Time  `gorm:"not null;index" json:"expires_at"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	ReplacedByID *string    `gorm:"type:uuid" json:"replaced_by_id,omitempty"`
	UserAgent    string     `gorm:"type:text" json:"user_agent"`
	IP           string     `gorm:"type:varchar(64)" json:"ip"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsActive reports whether the token can still be exchanged
func (t *RefreshToken) IsActive(now time.Time) bool {
	return t.RevokedAt == nil && now.Before(t.ExpiresAt)
}

// PasswordReset stores a hashed, single-use password reset token
type PasswordReset struct {
	ID     string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID string `gorm:"type:uuid;not null;index" json:"user_id"`

	TokenHash string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	Used      bool      `gorm:"default:false" json:"used"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeCreate hooks for GORM
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = generateUUID()
	}
	if u.Timezone == "" {
		u.Timezone = "UTC"
	}
	return nil
}

func (t *RefreshToken) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = generateUUID()
	}
	if t.FamilyID == "" {
		t.FamilyID = t.ID
	}
	return nil
}

func (p *PasswordReset) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = generateUUID()
	}
	return nil
}

func generateUUID() string {
	return uuid.New().String()
}
