package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrDuplicate    = errors.New("record already exists")
	ErrInvalidInput = errors.New("invalid input")

	// ErrUserNotFound keeps call sites in the auth flow readable
	ErrUserNotFound = ErrNotFound
)

// translate maps driver errors onto the package sentinels
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

// IsUniqueViolation reports unique-constraint failures from postgres or sqlite
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
