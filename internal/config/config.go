package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the server configuration gathered from the environment
type Config struct {
	Port        string
	Environment string

	JWTSecret       []byte
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	DBDriver    string
	DatabaseURL string
	SQLitePath  string

	RedisHost     string
	RedisPort     string
	RedisPassword string

	LogLevel string
	LogFile  string

	OTelEnabled      bool
	OTelEndpoint     string
	OTelSamplingRate float64

	CORSAllowedOrigins []string

	AWSRegion        string
	ExportBucket     string
	SESFromEmail     string
	WebBaseURL       string
	ElasticsearchURL string

	CleanupInterval time.Duration
}

// Load reads the configuration from environment variables.
// JWT_SECRET is the only required value.
func Load() (*Config, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	accessTTL, err := durationEnv("ACCESS_TOKEN_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	refreshTTL, err := durationEnv("REFRESH_TOKEN_TTL", 30*24*time.Hour)
	if err != nil {
		return nil, err
	}
	cleanup, err := durationEnv("CLEANUP_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}

	sampling := 1.0
	if v := os.Getenv("OTEL_SAMPLING_RATE"); v != "" {
		if parsed, perr := strconv.ParseFloat(v, 64); perr == nil && parsed >= 0 && parsed <= 1 {
			sampling = parsed
		}
	}

	driver := strings.ToLower(GetEnvOrDefault("DB_DRIVER", "postgres"))
	if driver != "postgres" && driver != "sqlite" {
		return nil, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", driver)
	}

	return &Config{
		Port:               GetEnvOrDefault("PORT", "8787"),
		Environment:        GetEnvOrDefault("ENVIRONMENT", "development"),
		JWTSecret:          []byte(secret),
		AccessTokenTTL:     accessTTL,
		RefreshTokenTTL:    refreshTTL,
		DBDriver:           driver,
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		SQLitePath:         GetEnvOrDefault("SQLITE_PATH", "daybook.db"),
		RedisHost:          GetEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:          GetEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword:      os.Getenv("REDIS_PASSWORD"),
		LogLevel:           GetEnvOrDefault("LOG_LEVEL", "info"),
		LogFile:            GetEnvOrDefault("LOG_FILE", "daybook.log"),
		OTelEnabled:        os.Getenv("OTEL_ENABLED") == "true",
		OTelEndpoint:       GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTelSamplingRate:   sampling,
		CORSAllowedOrigins: splitOrigins(os.Getenv("CORS_ALLOWED_ORIGINS")),
		AWSRegion:          GetEnvOrDefault("AWS_REGION", "us-east-1"),
		ExportBucket:       os.Getenv("EXPORT_BUCKET"),
		SESFromEmail:       os.Getenv("SES_FROM_EMAIL"),
		WebBaseURL:         GetEnvOrDefault("WEB_BASE_URL", "http://localhost:5173"),
		ElasticsearchURL:   os.Getenv("ELASTICSEARCH_URL"),
		CleanupInterval:    cleanup,
	}, nil
}

// IsProduction reports whether ENVIRONMENT=production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// GetEnvOrDefault returns environment variable or default value
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("%s must be a positive duration (e.g. 15m): %q", key, v)
	}
	return d, nil
}

func splitOrigins(v string) []string {
	if v == "" {
		return []string{"http://localhost:5173", "http://localhost:3000"}
	}
	var origins []string
	for _, o := range strings.Split(v, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
