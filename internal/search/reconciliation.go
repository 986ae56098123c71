package search

import (
	"context"
	"sync"
	"time"

	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReconciliationService periodically pushes rows changed since its last pass
// into the index, catching anything the indexer missed while Elasticsearch was down.
// The first pass covers everything.
type ReconciliationService struct {
	db        *gorm.DB
	backend   Backend
	interval  time.Duration
	since     time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.Mutex
}

// NewReconciliationService creates a new reconciliation service
func NewReconciliationService(db *gorm.DB, backend Backend, interval time.Duration) *ReconciliationService {
	return &ReconciliationService{
		db:       db,
		backend:  backend,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start begins the periodic reconciliation loop
func (rs *ReconciliationService) Start() {
	rs.mu.Lock()
	if rs.isRunning {
		rs.mu.Unlock()
		return
	}
	rs.isRunning = true
	rs.mu.Unlock()

	logger.Log.Info("Starting search reconciliation service",
		zap.Duration("interval", rs.interval),
	)

	rs.wg.Add(1)
	go rs.reconciliationLoop()
}

// Stop gracefully stops the reconciliation service
func (rs *ReconciliationService) Stop() {
	rs.mu.Lock()
	if !rs.isRunning {
		rs.mu.Unlock()
		return
	}
	rs.isRunning = false
	rs.mu.Unlock()

	close(rs.stopChan)
	rs.wg.Wait()
	logger.Log.Info("Search reconciliation service stopped")
}

func (rs *ReconciliationService) reconciliationLoop() {
	defer rs.wg.Done()

	rs.performReconciliation()

	ticker := time.NewTicker(rs.interval)
	defer ticker.Stop()

	for {
		select {
		case <-rs.stopChan:
			return
		case <-ticker.C:
			rs.performReconciliation()
		}
	}
}

func (rs *ReconciliationService) performReconciliation() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	startTime := time.Now()
	indexed, removed, err := rs.Reconcile(ctx)
	if err != nil {
		logger.Log.Warn("Search reconciliation failed", zap.Error(err))
		return
	}
	logger.Log.Info("Search reconciliation completed",
		zap.Int("indexed", indexed),
		zap.Int("removed", removed),
		zap.Duration("duration", time.Since(startTime)),
	)
}

// Reconcile runs one pass. The cursor only advances when every row made it.
func (rs *ReconciliationService) Reconcile(ctx context.Context) (indexed, removed int, err error) {
	if rs.backend == nil {
		return 0, 0, nil
	}
	cursor := time.Now().UTC()

	var items []models.ProgressItem
	if err := rs.db.WithContext(ctx).Unscoped().
		Where("updated_at > ? OR deleted_at > ?", rs.since, rs.since).
		Find(&items).Error; err != nil {
		return 0, 0, err
	}
	var evs []models.TimelineEvent
	if err := rs.db.WithContext(ctx).Unscoped().
		Where("updated_at > ? OR deleted_at > ?", rs.since, rs.since).
		Find(&evs).Error; err != nil {
		return 0, 0, err
	}

	failed := 0
	for i := range items {
		item := &items[i]
		if item.DeletedAt.Valid {
			err = rs.backend.DeleteDocument(ctx, TypeProgressItem, item.ID)
			if err == nil {
				removed++
			}
		} else {
			err = rs.backend.IndexDocument(ctx, ProgressItemToDocument(item))
			if err == nil {
				indexed++
			}
		}
		if err != nil {
			failed++
			logger.Log.Warn("Failed to reconcile progress item",
				logger.WithEntity(models.EntityProgressItem, item.ID),
				zap.Error(err),
			)
		}
	}
	for i := range evs {
		e := &evs[i]
		if e.DeletedAt.Valid {
			err = rs.backend.DeleteDocument(ctx, TypeTimelineEvent, e.ID)
			if err == nil {
				removed++
			}
		} else {
			err = rs.backend.IndexDocument(ctx, TimelineEventToDocument(e))
			if err == nil {
				indexed++
			}
		}
		if err != nil {
			failed++
			logger.Log.Warn("Failed to reconcile timeline event",
				logger.WithEntity(models.EntityTimelineEvent, e.ID),
				zap.Error(err),
			)
		}
	}

	if failed == 0 {
		rs.since = cursor
	}
	return indexed, removed, nil
}
