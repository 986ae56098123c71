// Package testutil holds the shared in-memory database harness for package tests.
package testutil

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/daybook/internal/database"
	"github.com/zfogg/daybook/internal/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDB opens a migrated in-memory SQLite database that lives as long as the test
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	require.NoError(t, err)

	// every connection to :memory: is a separate database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.MigrateDB(db))

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	return db
}

// CreateUser inserts a user with password "password123"
func CreateUser(t testing.TB, db *gorm.DB, username string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	require.NoError(t, err)
	hashStr := string(hash)

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        strings.ToLower(username) + "@example.com",
		Username:     username,
		DisplayName:  username,
		Timezone:     "UTC",
		PasswordHash: &hashStr,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}
