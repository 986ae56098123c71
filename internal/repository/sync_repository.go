package repository

import (
	"context"
	"time"

	"github.com/zfogg/daybook/internal/models"
	"gorm.io/gorm"
)

// SyncRepository records replayed outbox operations
type SyncRepository interface {
	GetOp(ctx context.Context, userID, opID string) (*models.SyncOperation, error)
	RecordOp(ctx context.Context, op *models.SyncOperation) error
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

type syncRepository struct {
	db *gorm.DB
}

// NewSyncRepository creates a new sync operation repository
func NewSyncRepository(db *gorm.DB) SyncRepository {
	return &syncRepository{db: db}
}

func (r *syncRepository) GetOp(ctx context.Context, userID, opID string) (*models.SyncOperation, error) {
	var op models.SyncOperation
	if err := r.db.WithContext(ctx).Where("user_id = ? AND op_id = ?", userID, opID).First(&op).Error; err != nil {
		return nil, translate(err)
	}
	return &op, nil
}

func (r *syncRepository) RecordOp(ctx context.Context, op *models.SyncOperation) error {
	return translate(r.db.WithContext(ctx).Create(op).Error)
}

func (r *syncRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", before).Delete(&models.SyncOperation{})
	return res.RowsAffected, res.Error
}
