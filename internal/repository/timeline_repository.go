package repository

import (
	"context"
	"strings"
	"time"

	"github.com/zfogg/daybook/internal/models"
	"gorm.io/gorm"
)

// TimelineRepository handles database operations for timeline events
type TimelineRepository interface {
	Create(ctx context.Context, e *models.TimelineEvent) error
	Get(ctx context.Context, userID, id string) (*models.TimelineEvent, error)
	GetUnscoped(ctx context.Context, userID, id string) (*models.TimelineEvent, error)
	Exists(ctx context.Context, id string) (bool, error)
	Range(ctx context.Context, userID string, from, to time.Time) ([]models.TimelineEvent, error)
	Save(ctx context.Context, e *models.TimelineEvent) error
	Delete(ctx context.Context, userID, id string) error
	UnlinkProgressItem(ctx context.Context, userID, itemID string) error
	ChangedSince(ctx context.Context, userID string, since time.Time) ([]models.TimelineEvent, error)
	ListAll(ctx context.Context, userID string) ([]models.TimelineEvent, error)
	Search(ctx context.Context, userID, query string, limit int) ([]models.TimelineEvent, error)
	Count(ctx context.Context) (int64, error)
}

type timelineRepository struct {
	db *gorm.DB
}

// NewTimelineRepository creates a new timeline repository
func NewTimelineRepository(db *gorm.DB) TimelineRepository {
	return &timelineRepository{db: db}
}

func (r *timelineRepository) Create(ctx context.Context, e *models.TimelineEvent) error {
	if e == nil || e.UserID == "" {
		return ErrInvalidInput
	}
	return translate(r.db.WithContext(ctx).Create(e).Error)
}

func (r *timelineRepository) Get(ctx context.Context, userID, id string) (*models.TimelineEvent, error) {
	var e models.TimelineEvent
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&e).Error; err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (r *timelineRepository) GetUnscoped(ctx context.Context, userID, id string) (*models.TimelineEvent, error) {
	var e models.TimelineEvent
	if err := r.db.WithContext(ctx).Unscoped().Where("id = ? AND user_id = ?", id, userID).First(&e).Error; err != nil {
		return nil, translate(err)
	}
	return &e, nil
}

func (r *timelineRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Unscoped().Model(&models.TimelineEvent{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// Range returns events overlapping [from, to). Zero-length events match when they start inside the range.
func (r *timelineRepository) Range(ctx context.Context, userID string, from, to time.Time) ([]models.TimelineEvent, error) {
	events := []models.TimelineEvent{}
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND starts_at < ? AND (ends_at > ? OR (ends_at = starts_at AND starts_at >= ?))",
			userID, to, from, from).
		Order("starts_at ASC").Order("title ASC").Order("id ASC").
		Find(&events).Error
	return events, err
}

func (r *timelineRepository) Save(ctx context.Context, e *models.TimelineEvent) error {
	if e == nil || e.ID == "" {
		return ErrInvalidInput
	}
	return translate(r.db.WithContext(ctx).Save(e).Error)
}

func (r *timelineRepository) Delete(ctx context.Context, userID, id string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.TimelineEvent{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UnlinkProgressItem clears links to a deleted item so the change feed carries the update
func (r *timelineRepository) UnlinkProgressItem(ctx context.Context, userID, itemID string) error {
	return r.db.WithContext(ctx).Model(&models.TimelineEvent{}).
		Where("user_id = ? AND progress_item_id = ?", userID, itemID).
		Updates(map[string]interface{}{"progress_item_id": nil, "updated_at": time.Now().UTC()}).Error
}

func (r *timelineRepository) ChangedSince(ctx context.Context, userID string, since time.Time) ([]models.TimelineEvent, error) {
	events := []models.TimelineEvent{}
	err := r.db.WithContext(ctx).Unscoped().
		Where("user_id = ? AND (updated_at > ? OR deleted_at > ?)", userID, since, since).
		Order("updated_at ASC").
		Find(&events).Error
	return events, err
}

func (r *timelineRepository) ListAll(ctx context.Context, userID string) ([]models.TimelineEvent, error) {
	events := []models.TimelineEvent{}
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("starts_at ASC").Find(&events).Error
	return events, err
}

func (r *timelineRepository) Search(ctx context.Context, userID, query string, limit int) ([]models.TimelineEvent, error) {
	events := []models.TimelineEvent{}
	pattern := "%" + strings.ToLower(query) + "%"
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND (LOWER(title) LIKE ? OR LOWER(description) LIKE ? OR LOWER(location) LIKE ?)",
			userID, pattern, pattern, pattern).
		Order("starts_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}

func (r *timelineRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.TimelineEvent{}).Count(&count).Error
	return count, err
}
