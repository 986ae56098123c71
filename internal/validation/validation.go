package validation

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/zfogg/daybook/internal/cache"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/storage"
	"go.uber.org/zap"
)

// optionalServices can be made mandatory with DAYBOOK_REQUIRE_<NAME>=true
var optionalServices = []string{"elasticsearch", "s3", "redis"}

// ServiceValidator handles validation of optional services
type ServiceValidator struct {
	requiredServices []string
	checks           map[string]func(ctx context.Context) error
}

// NewServiceValidator creates a new service validator
func NewServiceValidator() *ServiceValidator {
	return &ServiceValidator{
		requiredServices: parseRequiredServices(),
		checks: map[string]func(ctx context.Context) error{
			"elasticsearch": validateElasticsearch,
			"s3":            validateS3,
			"redis":         validateRedis,
		},
	}
}

// ValidateServices validates all configured services
func (sv *ServiceValidator) ValidateServices(ctx context.Context) error {
	if len(sv.requiredServices) == 0 {
		logger.Log.Info("No required services configured for validation")
		return nil
	}

	logger.Log.Info("Validating required services",
		zap.Strings("services", sv.requiredServices),
	)

	for _, serviceName := range sv.requiredServices {
		check, ok := sv.checks[serviceName]
		if !ok {
			logger.Log.Warn("Unknown service type in validation",
				zap.String("service", serviceName),
			)
			continue
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := check(timeoutCtx)
		cancel()
		if err != nil {
			logger.Log.Error("Required service validation failed",
				zap.String("service", serviceName),
				zap.Error(err),
			)
			return fmt.Errorf("required service %q validation failed: %w", serviceName, err)
		}

		logger.Log.Info("Service validated successfully",
			zap.String("service", serviceName),
		)
	}

	return nil
}

// validateElasticsearch checks if Elasticsearch is reachable
func validateElasticsearch(ctx context.Context) error {
	address := os.Getenv("ELASTICSEARCH_URL")
	if address == "" {
		return fmt.Errorf("ELASTICSEARCH_URL is required")
	}

	cfg := elasticsearch.Config{
		Addresses: []string{address},
	}
	if username := os.Getenv("ELASTICSEARCH_USERNAME"); username != "" {
		cfg.Username = username
		cfg.Password = os.Getenv("ELASTICSEARCH_PASSWORD")
	}

	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}

	res, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch returned error status: %s", res.Status())
	}

	return nil
}

// validateS3 checks that the export bucket is accessible
func validateS3(ctx context.Context) error {
	region := os.Getenv("AWS_REGION")
	bucket := os.Getenv("EXPORT_BUCKET")
	if region == "" || bucket == "" {
		return fmt.Errorf("AWS_REGION and EXPORT_BUCKET are required for S3 validation")
	}

	exporter, err := storage.NewS3Exporter(ctx, region, bucket)
	if err != nil {
		return fmt.Errorf("failed to initialize S3 client: %w", err)
	}

	if err := exporter.CheckBucketAccess(ctx); err != nil {
		return fmt.Errorf("S3 bucket access check failed: %w", err)
	}

	return nil
}

// validateRedis checks if Redis is reachable
func validateRedis(ctx context.Context) error {
	redisClient, err := cache.NewRedisClient(os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT"), os.Getenv("REDIS_PASSWORD"))
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	defer redisClient.Close()

	return redisClient.Ping(ctx)
}

// parseRequiredServices parses the DAYBOOK_REQUIRE_* environment variables
func parseRequiredServices() []string {
	var required []string

	for _, service := range optionalServices {
		envVar := fmt.Sprintf("DAYBOOK_REQUIRE_%s", strings.ToUpper(service))
		if isTruthy(os.Getenv(envVar)) {
			required = append(required, service)
		}
	}

	return required
}

// isTruthy checks if a string value represents a truthy value
func isTruthy(value string) bool {
	if value == "" {
		return false
	}

	value = strings.ToLower(strings.TrimSpace(value))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}
