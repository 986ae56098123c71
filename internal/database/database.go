package database

import (
	"fmt"
	"os"
	"time"

	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/models"
	"github.com/zfogg/daybook/internal/telemetry"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// DB holds the database connection
var DB *gorm.DB

// Driver names accepted by DB_DRIVER
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Initialize creates and configures the database connection.
// DB_DRIVER selects postgres (default) or sqlite (SQLITE_PATH, for local single-user mode).
func Initialize() error {
	driver := getEnvOrDefault("DB_DRIVER", DriverPostgres)

	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite:
		dialector = sqlite.Open(getEnvOrDefault("SQLITE_PATH", "daybook.db") + "?_foreign_keys=on")
	case DriverPostgres:
		dialector = postgres.Open(postgresDSN())
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", driver)
	}

	gormLogger := gormlogger.Default.LogMode(gormlogger.Warn)
	if os.Getenv("ENVIRONMENT") == "development" {
		gormLogger = gormlogger.Default.LogMode(gormlogger.Info)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormLogger,
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.Use(telemetry.GORMTracingPlugin()); err != nil {
		logger.Log.Warn("Database tracing disabled", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if driver == DriverSQLite {
		// sqlite serialises writers; one connection avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	DB = db
	logger.Log.Info("Database connected", zap.String("driver", driver))

	return nil
}

func postgresDSN() string {
	if databaseURL := os.Getenv("DATABASE_URL"); databaseURL != "" {
		return databaseURL
	}
	host := getEnvOrDefault("DB_HOST", "localhost")
	port := getEnvOrDefault("DB_PORT", "5432")
	user := getEnvOrDefault("DB_USER", "postgres")
	password := getEnvOrDefault("DB_PASSWORD", "")
	dbname := getEnvOrDefault("DB_NAME", "daybook")
	sslmode := getEnvOrDefault("DB_SSLMODE", "disable")

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbname, sslmode)
}

// Migrate runs auto-migration for all models
func Migrate() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	return MigrateDB(DB)
}

// MigrateDB migrates an explicit connection; tests use it against in-memory sqlite
func MigrateDB(db *gorm.DB) error {
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := createIndexes(db); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	logger.Log.Info("Database migrations completed")
	return nil
}

// createIndexes adds the expression and partial indexes AutoMigrate cannot express.
// Both postgres and sqlite accept this syntax.
func createIndexes(db *gorm.DB) error {
	statements := []string{
		"CREATE INDEX IF NOT EXISTS idx_users_email_lower ON users (LOWER(email))",
		"CREATE INDEX IF NOT EXISTS idx_users_username_lower ON users (LOWER(username))",

		"CREATE INDEX IF NOT EXISTS idx_progress_items_user_updated ON progress_items (user_id, updated_at)",
		"CREATE INDEX IF NOT EXISTS idx_progress_items_user_open ON progress_items (user_id, due_date) WHERE status <> 'done' AND deleted_at IS NULL",

		"CREATE INDEX IF NOT EXISTS idx_commitments_user_updated ON commitments (user_id, updated_at)",
		"CREATE INDEX IF NOT EXISTS idx_commitment_logs_user_date ON commitment_logs (user_id, date)",
		"CREATE INDEX IF NOT EXISTS idx_commitment_logs_user_updated ON commitment_logs (user_id, updated_at)",

		"CREATE INDEX IF NOT EXISTS idx_timeline_events_user_updated ON timeline_events (user_id, updated_at)",
		"CREATE INDEX IF NOT EXISTS idx_timeline_events_user_end ON timeline_events (user_id, ends_at)",

		"CREATE INDEX IF NOT EXISTS idx_refresh_tokens_active ON refresh_tokens (user_id, expires_at) WHERE revoked_at IS NULL",
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("%s: %w", stmt, err)
		}
	}
	return nil
}

// Close closes the database connection
func Close() error {
	if DB == nil {
		return nil
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

// Health checks database connectivity
func Health() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Ping()
}

// getEnvOrDefault returns environment variable or default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
