package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zfogg/daybook/internal/auth"
	"github.com/zfogg/daybook/internal/cache"
	"github.com/zfogg/daybook/internal/config"
	"github.com/zfogg/daybook/internal/dashboard"
	"github.com/zfogg/daybook/internal/database"
	"github.com/zfogg/daybook/internal/email"
	"github.com/zfogg/daybook/internal/events"
	"github.com/zfogg/daybook/internal/export"
	"github.com/zfogg/daybook/internal/handlers"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/maintenance"
	"github.com/zfogg/daybook/internal/metrics"
	"github.com/zfogg/daybook/internal/middleware"
	"github.com/zfogg/daybook/internal/search"
	"github.com/zfogg/daybook/internal/storage"
	"github.com/zfogg/daybook/internal/telemetry"
	"github.com/zfogg/daybook/internal/util"
	"github.com/zfogg/daybook/internal/validation"
	"github.com/zfogg/daybook/internal/websocket"
	"go.uber.org/zap"
)

const (
	serviceName            = "daybook-backend"
	reconciliationInterval = 15 * time.Minute
	poolStatsInterval      = 15 * time.Second
)

func main() {
	// Load environment variables
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		// logger is not up yet
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	if err := logger.Initialize(cfg.LogLevel, cfg.LogFile); err != nil {
		os.Stderr.WriteString("logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer logger.Close()
	if envErr != nil {
		logger.Log.Info(".env file not found, using system environment variables")
	}
	logger.Log.Info("=== Daybook server starting ===", zap.String("environment", cfg.Environment))

	ctx := context.Background()

	tp, err := telemetry.InitTracer(ctx, telemetry.Config{
		ServiceName:  serviceName,
		Environment:  cfg.Environment,
		OTLPEndpoint: cfg.OTelEndpoint,
		Enabled:      cfg.OTelEnabled,
		SamplingRate: cfg.OTelSamplingRate,
	})
	if err != nil {
		logger.WarnWithFields("Tracing disabled", err)
	} else if tp != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	if err := database.Initialize(); err != nil {
		logger.FatalWithFields("Failed to initialize database", err)
	}
	defer database.Close()
	if err := database.Migrate(); err != nil {
		logger.FatalWithFields("Failed to run migrations", err)
	}
	db := database.DB

	if err := validation.NewServiceValidator().ValidateServices(ctx); err != nil {
		logger.Log.Fatal("Required service unavailable", zap.Error(err))
	}
	validation.RegisterCustomValidators()

	metrics.Initialize()
	metrics.App()

	// Redis is optional; without it caches are off and rate limits are per instance
	var store cache.Store
	if rc, err := cache.NewRedisClient(cfg.RedisHost, cfg.RedisPort, cfg.RedisPassword); err != nil {
		logger.Log.Warn("Redis unavailable, running without shared cache", zap.Error(err))
	} else {
		store = rc
		defer rc.Close()
	}

	var mailer auth.PasswordResetMailer
	if cfg.SESFromEmail != "" {
		svc, err := email.NewEmailService(cfg.AWSRegion, cfg.SESFromEmail, "Daybook", cfg.WebBaseURL)
		if err != nil {
			logger.Log.Warn("Email disabled", zap.Error(err))
		} else {
			mailer = svc
		}
	}

	authOpts := auth.Options{
		JWTSecret:       cfg.JWTSecret,
		AccessTokenTTL:  cfg.AccessTokenTTL,
		RefreshTokenTTL: cfg.RefreshTokenTTL,
		Mailer:          mailer,
	}
	if oauthCfg, err := config.LoadOAuthConfig(); err != nil {
		logger.Log.Info("Google sign-in disabled", zap.String("reason", err.Error()))
	} else {
		authOpts.Google = oauthCfg.GoogleConfig
	}
	authService := auth.NewService(db, authOpts)

	var backend search.Backend
	if cfg.ElasticsearchURL != "" {
		client, err := search.NewClient(cfg.ElasticsearchURL)
		if err != nil {
			logger.Log.Warn("Elasticsearch unavailable, search uses SQL", zap.Error(err))
		} else if err := client.InitializeIndices(ctx); err != nil {
			logger.Log.Warn("Failed to initialize search index, search uses SQL", zap.Error(err))
		} else {
			backend = client
		}
	}

	var uploader storage.ObjectUploader
	if cfg.ExportBucket != "" {
		s3, err := storage.NewS3Exporter(ctx, cfg.AWSRegion, cfg.ExportBucket)
		if err != nil {
			logger.Log.Warn("S3 unavailable, exports are returned inline", zap.Error(err))
		} else {
			if err := s3.CheckBucketAccess(ctx); err != nil {
				logger.Log.Warn("S3 bucket access check failed", zap.Error(err))
			}
			uploader = s3
		}
	}

	// Change fan-out: cache invalidation, search indexing and realtime nudges
	bus := events.NewBus()
	dash := dashboard.NewService(db, store)
	responseCache := middleware.NewResponseCache(store, "api")
	hub := websocket.NewHub()
	hub.Start()
	bus.Subscribe(dash)
	bus.Subscribe(responseCache)
	bus.Subscribe(hub)
	if backend != nil {
		bus.Subscribe(search.NewIndexer(backend))
	}

	wsHandler := websocket.NewHandler(hub, authService, cfg.CORSAllowedOrigins)

	svc := handlers.NewServices(db, bus, dash, search.NewService(db, backend), export.NewService(db, uploader))
	h := handlers.NewHandlers(db, svc)
	h.SetWebSocketHandler(wsHandler)
	authHandlers := handlers.NewAuthHandlers(authService, cfg.IsProduction())

	// Background services
	cleanup := maintenance.NewCleanupService(db, cfg.CleanupInterval)
	cleanup.Start()
	defer cleanup.Stop()
	if backend != nil {
		reconciler := search.NewReconciliationService(db, backend, reconciliationInterval)
		reconciler.Start()
		defer reconciler.Stop()
	}

	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	go reportPoolStats(statsCtx, store != nil)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.CorrelationMiddleware())
	if cfg.OTelEnabled {
		r.Use(middleware.TracingMiddleware(serviceName)...)
	}
	r.Use(middleware.GinLoggerMiddleware())
	r.Use(middleware.MetricsMiddleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSAllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-Request-ID", handlers.DeviceIDHeader}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "X-Cache", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"}
	corsConfig.AllowCredentials = true
	r.Use(cors.New(corsConfig))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/v1/ws", "/metrics"})))

	r.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		dbStatus := "ok"
		if err := database.Health(); err != nil {
			status = http.StatusServiceUnavailable
			dbStatus = err.Error()
		}
		redisStatus := "disabled"
		if store != nil {
			redisStatus = "ok"
			pingCtx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := cache.GetRedisClient().Ping(pingCtx); err != nil {
				redisStatus = err.Error()
			}
		}
		c.JSON(status, gin.H{
			"status":    http.StatusText(status),
			"timestamp": time.Now().UTC(),
			"service":   serviceName,
			"database":  dbStatus,
			"redis":     redisStatus,
			"search":    backend != nil,
			"export":    uploader != nil,
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	syncLimit := middleware.SyncRateLimitConfig()
	syncLimit.KeyFunc = func(c *gin.Context) string {
		if id := c.GetString(util.ContextUserIDKey); id != "" {
			return id
		}
		return c.ClientIP()
	}

	api := r.Group("/api/v1", middleware.RateLimit())
	handlers.RegisterRoutes(api, h, authHandlers, handlers.RouteOptions{
		Validator:     authService,
		ResponseCache: responseCache,
		AuthLimiter:   middleware.RateLimitSmartAuth(store),
		SyncLimiter:   middleware.StoreRateLimitMiddleware(store, syncLimit),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.Info("Daybook backend listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := wsHandler.Shutdown(shutdownCtx); err != nil {
		logger.WarnWithFields("WebSocket shutdown warning", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Log.Info("Server exited")
}

// reportPoolStats publishes connection pool sizes as gauges until ctx ends
func reportPoolStats(ctx context.Context, withRedis bool) {
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()
	for {
		if sqlDB, err := database.DB.DB(); err == nil {
			middleware.SetDatabaseConnections(database.DB.Dialector.Name(), sqlDB.Stats().OpenConnections)
		}
		if withRedis {
			middleware.SetRedisConnections("cache", int(cache.GetRedisClient().PoolStats().TotalConns))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
