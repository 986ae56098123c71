// Package maintenance prunes records that only matter for a while: spent
// refresh tokens, password reset links and the sync replay log.
package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/metrics"
	"github.com/zfogg/daybook/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Retention windows
const (
	RefreshTokenRetention  = 7 * 24 * time.Hour
	SyncOperationRetention = 30 * 24 * time.Hour

	DefaultInterval = time.Hour
)

// Report counts what one pass removed
type Report struct {
	RefreshTokens  int64
	PasswordResets int64
	SyncOperations int64
}

// CleanupService handles periodic cleanup of stale records
type CleanupService struct {
	tokens   repository.TokenRepository
	syncOps  repository.SyncRepository
	ctx      context.Context
	cancel   context.CancelFunc
	interval time.Duration
	now      func() time.Time
}

// NewCleanupService creates a new cleanup service. interval <= 0 uses DefaultInterval.
func NewCleanupService(db *gorm.DB, interval time.Duration) *CleanupService {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CleanupService{
		tokens:   repository.NewTokenRepository(db),
		syncOps:  repository.NewSyncRepository(db),
		ctx:      ctx,
		cancel:   cancel,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start begins the periodic cleanup process
func (s *CleanupService) Start() {
	logger.Log.Info("Starting cleanup service", zap.Duration("interval", s.interval))
	go s.run()
}

// Stop stops the cleanup service
func (s *CleanupService) Stop() {
	logger.Log.Info("Stopping cleanup service")
	s.cancel()
}

func (s *CleanupService) run() {
	s.runOnce()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runOnce()
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *CleanupService) runOnce() {
	startTime := time.Now()
	report, err := s.Cleanup(s.ctx)
	if err != nil {
		logger.Log.Error("Cleanup failed", zap.Error(err))
		return
	}
	logger.Log.Info("Cleanup completed",
		zap.Int64("refresh_tokens", report.RefreshTokens),
		zap.Int64("password_resets", report.PasswordResets),
		zap.Int64("sync_operations", report.SyncOperations),
		zap.Duration("duration", time.Since(startTime)),
	)
}

// Cleanup runs one pass over every table
func (s *CleanupService) Cleanup(ctx context.Context) (Report, error) {
	var report Report
	now := s.now()

	passes := []struct {
		table string
		run   func() (int64, error)
		dst   *int64
	}{
		{"refresh_tokens", func() (int64, error) {
			return s.tokens.DeleteStaleRefreshTokens(ctx, now.Add(-RefreshTokenRetention))
		}, &report.RefreshTokens},
		{"password_resets", func() (int64, error) {
			return s.tokens.DeleteStalePasswordResets(ctx, now)
		}, &report.PasswordResets},
		{"sync_operations", func() (int64, error) {
			return s.syncOps.DeleteOlderThan(ctx, now.Add(-SyncOperationRetention))
		}, &report.SyncOperations},
	}
	for _, p := range passes {
		n, err := p.run()
		if err != nil {
			return report, fmt.Errorf("clean %s: %w", p.table, err)
		}
		*p.dst = n
		metrics.App().CleanupDeletedTotal.WithLabelValues(p.table).Add(float64(n))
	}
	return report, nil
}
