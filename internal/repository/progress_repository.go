package repository

import (
	"context"
	"strings"
	"time"

	"github.com/zfogg/daybook/internal/models"
	"gorm.io/gorm"
)

// ProgressFilter narrows a progress item listing. Nil fields are ignored.
type ProgressFilter struct {
	Status    *models.ItemStatus
	Important *bool
	Urgent    *bool
	DueBefore *string
	DueAfter  *string
	Query     string
	SortBy    string
	SortDesc  bool
	Limit     int
	Offset    int
}

var progressSortColumns = map[string]string{
	"position":   "position",
	"due_date":   "due_date",
	"created_at": "created_at",
	"updated_at": "updated_at",
	"title":      "title",
}

// IsValidProgressSort reports whether sort names a sortable column
func IsValidProgressSort(sort string) bool {
	_, ok := progressSortColumns[sort]
	return ok
}

// ProgressRepository handles database operations for progress items
type ProgressRepository interface {
	Create(ctx context.Context, item *models.ProgressItem) error
	Get(ctx context.Context, userID, id string) (*models.ProgressItem, error)
	GetUnscoped(ctx context.Context, userID, id string) (*models.ProgressItem, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, userID string, filter ProgressFilter) ([]models.ProgressItem, int64, error)
	ListOpen(ctx context.Context, userID string) ([]models.ProgressItem, error)
	ListCompletedBetween(ctx context.Context, userID string, from, to time.Time) ([]models.ProgressItem, error)
	CountCompletedBetween(ctx context.Context, userID string, from, to time.Time) (int64, error)
	ListDueBetween(ctx context.Context, userID, from, to string) ([]models.ProgressItem, error)
	Save(ctx context.Context, item *models.ProgressItem) error
	Delete(ctx context.Context, userID, id string) error
	NextPosition(ctx context.Context, userID string) (int, error)
	Reorder(ctx context.Context, userID string, ids []string) error
	ChangedSince(ctx context.Context, userID string, since time.Time) ([]models.ProgressItem, error)
	ListAll(ctx context.Context, userID string) ([]models.ProgressItem, error)
	Search(ctx context.Context, userID, query string, limit int) ([]models.ProgressItem, error)
	Count(ctx context.Context) (int64, error)
}

type progressRepository struct {
	db *gorm.DB
}

// NewProgressRepository creates a new progress item repository
func NewProgressRepository(db *gorm.DB) ProgressRepository {
	return &progressRepository{db: db}
}

func (r *progressRepository) Create(ctx context.Context, item *models.ProgressItem) error {
	if item == nil || item.UserID == "" {
		return ErrInvalidInput
	}
	return translate(r.db.WithContext(ctx).Create(item).Error)
}

func (r *progressRepository) Get(ctx context.Context, userID, id string) (*models.ProgressItem, error) {
	var item models.ProgressItem
	err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&item).Error
	if err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

// GetUnscoped includes soft-deleted rows
func (r *progressRepository) GetUnscoped(ctx context.Context, userID, id string) (*models.ProgressItem, error) {
	var item models.ProgressItem
	err := r.db.WithContext(ctx).Unscoped().Where("id = ? AND user_id = ?", id, userID).First(&item).Error
	if err != nil {
		return nil, translate(err)
	}
	return &item, nil
}

// Exists checks an id across all users, including deleted rows
func (r *progressRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Unscoped().Model(&models.ProgressItem{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *progressRepository) List(ctx context.Context, userID string, filter ProgressFilter) ([]models.ProgressItem, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.ProgressItem{}).Where("user_id = ?", userID)

	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.Important != nil {
		q = q.Where("important = ?", *filter.Important)
	}
	if filter.Urgent != nil {
		q = q.Where("urgent = ?", *filter.Urgent)
	}
	if filter.DueBefore != nil {
		q = q.Where("due_date IS NOT NULL AND due_date < ?", *filter.DueBefore)
	}
	if filter.DueAfter != nil {
		q = q.Where("due_date IS NOT NULL AND due_date > ?", *filter.DueAfter)
	}
	if s := strings.TrimSpace(filter.Query); s != "" {
		pattern := "%" + strings.ToLower(s) + "%"
		q = q.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", pattern, pattern)
	}

	q = q.Session(&gorm.Session{})

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	column, ok := progressSortColumns[filter.SortBy]
	if !ok {
		column = "position"
	}
	direction := " ASC"
	if filter.SortDesc {
		direction = " DESC"
	}
	// NULL due dates sort last either way
	if column == "due_date" {
		q = q.Order("CASE WHEN due_date IS NULL THEN 1 ELSE 0 END")
	}
	q = q.Order(column + direction).Order("created_at ASC").Order("id ASC")

	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	items := []models.ProgressItem{}
	if err := q.Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *progressRepository) ListOpen(ctx context.Context, userID string) ([]models.ProgressItem, error) {
	items := []models.ProgressItem{}
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status <> ?", userID, models.StatusDone).
		Order("position ASC").Order("created_at ASC").
		Find(&items).Error
	return items, err
}

// ListCompletedBetween returns items completed in [from, to)
func (r *progressRepository) ListCompletedBetween(ctx context.Context, userID string, from, to time.Time) ([]models.ProgressItem, error) {
	items := []models.ProgressItem{}
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ? AND completed_at >= ? AND completed_at < ?", userID, models.StatusDone, from, to).
		Order("completed_at ASC").
		Find(&items).Error
	return items, err
}

func (r *progressRepository) CountCompletedBetween(ctx context.Context, userID string, from, to time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ProgressItem{}).
		Where("user_id = ? AND status = ? AND completed_at >= ? AND completed_at < ?", userID, models.StatusDone, from, to).
		Count(&count).Error
	return count, err
}

// ListDueBetween returns items whose due date is in [from, to], both inclusive
func (r *progressRepository) ListDueBetween(ctx context.Context, userID, from, to string) ([]models.ProgressItem, error) {
	items := []models.ProgressItem{}
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND due_date IS NOT NULL AND due_date >= ? AND due_date <= ?", userID, from, to).
		Order("due_date ASC").
		Find(&items).Error
	return items, err
}

func (r *progressRepository) Save(ctx context.Context, item *models.ProgressItem) error {
	if item == nil || item.ID == "" {
		return ErrInvalidInput
	}
	return translate(r.db.WithContext(ctx).Save(item).Error)
}

func (r *progressRepository) Delete(ctx context.Context, userID, id string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.ProgressItem{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// NextPosition returns one past the highest position in use
func (r *progressRepository) NextPosition(ctx context.Context, userID string) (int, error) {
	var max int
	err := r.db.WithContext(ctx).Model(&models.ProgressItem{}).
		Where("user_id = ?", userID).
		Select("COALESCE(MAX(position), -1)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

// Reorder assigns positions 0..n-1 following ids. Every id must belong to the user.
func (r *progressRepository) Reorder(ctx context.Context, userID string, ids []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ProgressItem{}).
			Where("user_id = ? AND id IN ?", userID, ids).
			Count(&count).Error; err != nil {
			return err
		}
		if int(count) != len(ids) {
			return ErrNotFound
		}
		for pos, id := range ids {
			if err := tx.Model(&models.ProgressItem{}).
				Where("id = ? AND user_id = ?", id, userID).
				Update("position", pos).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ChangedSince includes soft-deleted rows so callers can emit tombstones
func (r *progressRepository) ChangedSince(ctx context.Context, userID string, since time.Time) ([]models.ProgressItem, error) {
	items := []models.ProgressItem{}
	err := r.db.WithContext(ctx).Unscoped().
		Where("user_id = ? AND (updated_at > ? OR deleted_at > ?)", userID, since, since).
		Order("updated_at ASC").
		Find(&items).Error
	return items, err
}

func (r *progressRepository) ListAll(ctx context.Context, userID string) ([]models.ProgressItem, error) {
	items := []models.ProgressItem{}
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("position ASC").Find(&items).Error
	return items, err
}

func (r *progressRepository) Search(ctx context.Context, userID, query string, limit int) ([]models.ProgressItem, error) {
	items := []models.ProgressItem{}
	pattern := "%" + strings.ToLower(query) + "%"
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND (LOWER(title) LIKE ? OR LOWER(description) LIKE ?)", userID, pattern, pattern).
		Order("updated_at DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

func (r *progressRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ProgressItem{}).Count(&count).Error
	return count, err
}
