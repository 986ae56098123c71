package repository

import (
	"context"
	"time"

	"github.com/zfogg/daybook/internal/models"
	"gorm.io/gorm"
)

// CommitmentRepository handles database operations for commitments and their logs
type CommitmentRepository interface {
	Create(ctx context.Context, c *models.Commitment) error
	Get(ctx context.Context, userID, id string) (*models.Commitment, error)
	GetUnscoped(ctx context.Context, userID, id string) (*models.Commitment, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, userID string, archived *bool) ([]models.Commitment, error)
	ListActiveOn(ctx context.Context, userID, date string) ([]models.Commitment, error)
	Save(ctx context.Context, c *models.Commitment) error
	Delete(ctx context.Context, userID, id string) error
	ChangedSince(ctx context.Context, userID string, since time.Time) ([]models.Commitment, error)
	Count(ctx context.Context) (int64, error)

	// GetLogUnscoped finds the log for a day, including an undone (soft-deleted) one
	GetLogUnscoped(ctx context.Context, commitmentID, date string) (*models.CommitmentLog, error)
	GetLogByID(ctx context.Context, userID, id string) (*models.CommitmentLog, error)
	CreateLog(ctx context.Context, log *models.CommitmentLog) error
	RestoreLog(ctx context.Context, log *models.CommitmentLog) error
	DeleteLog(ctx context.Context, commitmentID, date string) error
	DeleteLogByID(ctx context.Context, userID, id string) error
	ListLogs(ctx context.Context, commitmentID, from, to string) ([]models.CommitmentLog, error)
	LogDates(ctx context.Context, commitmentID string) ([]string, error)
	LoggedOn(ctx context.Context, userID, date string) (map[string]bool, error)
	ListAllLogs(ctx context.Context, userID string) ([]models.CommitmentLog, error)
	LogsChangedSince(ctx context.Context, userID string, since time.Time) ([]models.CommitmentLog, error)
	CountLogs(ctx context.Context) (int64, error)
}

type commitmentRepository struct {
	db *gorm.DB
}

// NewCommitmentRepository creates a new commitment repository
func NewCommitmentRepository(db *gorm.DB) CommitmentRepository {
	return &commitmentRepository{db: db}
}

func (r *commitmentRepository) Create(ctx context.Context, c *models.Commitment) error {
	if c == nil || c.UserID == "" {
		return ErrInvalidInput
	}
	return translate(r.db.WithContext(ctx).Create(c).Error)
}

func (r *commitmentRepository) Get(ctx context.Context, userID, id string) (*models.Commitment, error) {
	var c models.Commitment
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *commitmentRepository) GetUnscoped(ctx context.Context, userID, id string) (*models.Commitment, error) {
	var c models.Commitment
	if err := r.db.WithContext(ctx).Unscoped().Where("id = ? AND user_id = ?", id, userID).First(&c).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (r *commitmentRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Unscoped().Model(&models.Commitment{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (r *commitmentRepository) List(ctx context.Context, userID string, archived *bool) ([]models.Commitment, error) {
	q := r.db.WithContext(ctx).Where("user_id = ?", userID)
	if archived != nil {
		q = q.Where("archived = ?", *archived)
	}
	list := []models.Commitment{}
	err := q.Order("created_at ASC").Order("id ASC").Find(&list).Error
	return list, err
}

// ListActiveOn returns unarchived commitments whose date range contains date
func (r *commitmentRepository) ListActiveOn(ctx context.Context, userID, date string) ([]models.Commitment, error) {
	list := []models.Commitment{}
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND archived = ? AND start_date <= ? AND (end_date IS NULL OR end_date >= ?)",
			userID, false, date, date).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *commitmentRepository) Save(ctx context.Context, c *models.Commitment) error {
	if c == nil || c.ID == "" {
		return ErrInvalidInput
	}
	return translate(r.db.WithContext(ctx).Save(c).Error)
}

// Delete soft-deletes the commitment and its logs
func (r *commitmentRepository) Delete(ctx context.Context, userID, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&models.Commitment{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return tx.Where("commitment_id = ?", id).Delete(&models.CommitmentLog{}).Error
	})
}

func (r *commitmentRepository) ChangedSince(ctx context.Context, userID string, since time.Time) ([]models.Commitment, error) {
	list := []models.Commitment{}
	err := r.db.WithContext(ctx).Unscoped().
		Where("user_id = ? AND (updated_at > ? OR deleted_at > ?)", userID, since, since).
		Order("updated_at ASC").
		Find(&list).Error
	return list, err
}

func (r *commitmentRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Commitment{}).Count(&count).Error
	return count, err
}

func (r *commitmentRepository) GetLogUnscoped(ctx context.Context, commitmentID, date string) (*models.CommitmentLog, error) {
	var log models.CommitmentLog
	err := r.db.WithContext(ctx).Unscoped().
		Where("commitment_id = ? AND date = ?", commitmentID, date).
		First(&log).Error
	if err != nil {
		return nil, translate(err)
	}
	return &log, nil
}

func (r *commitmentRepository) GetLogByID(ctx context.Context, userID, id string) (*models.CommitmentLog, error) {
	var log models.CommitmentLog
	if err := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&log).Error; err != nil {
		return nil, translate(err)
	}
	return &log, nil
}

func (r *commitmentRepository) CreateLog(ctx context.Context, log *models.CommitmentLog) error {
	return translate(r.db.WithContext(ctx).Create(log).Error)
}

// RestoreLog revives an undone check-in with a fresh note
func (r *commitmentRepository) RestoreLog(ctx context.Context, log *models.CommitmentLog) error {
	return r.db.WithContext(ctx).Unscoped().
		Model(&models.CommitmentLog{}).
		Where("id = ?", log.ID).
		Updates(map[string]interface{}{
			"deleted_at": nil,
			"note":       log.Note,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *commitmentRepository) DeleteLog(ctx context.Context, commitmentID, date string) error {
	res := r.db.WithContext(ctx).
		Where("commitment_id = ? AND date = ?", commitmentID, date).
		Delete(&models.CommitmentLog{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *commitmentRepository) DeleteLogByID(ctx context.Context, userID, id string) error {
	res := r.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.CommitmentLog{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLogs returns logs with from <= date <= to; empty bounds are open
func (r *commitmentRepository) ListLogs(ctx context.Context, commitmentID, from, to string) ([]models.CommitmentLog, error) {
	q := r.db.WithContext(ctx).Where("commitment_id = ?", commitmentID)
	if from != "" {
		q = q.Where("date >= ?", from)
	}
	if to != "" {
		q = q.Where("date <= ?", to)
	}
	logs := []models.CommitmentLog{}
	err := q.Order("date ASC").Find(&logs).Error
	return logs, err
}

// LogDates returns every logged date, newest first
func (r *commitmentRepository) LogDates(ctx context.Context, commitmentID string) ([]string, error) {
	var dates []string
	err := r.db.WithContext(ctx).Model(&models.CommitmentLog{}).
		Where("commitment_id = ?", commitmentID).
		Order("date DESC").
		Pluck("date", &dates).Error
	return dates, err
}

// LoggedOn returns the set of commitment ids the user checked in on date
func (r *commitmentRepository) LoggedOn(ctx context.Context, userID, date string) (map[string]bool, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&models.CommitmentLog{}).
		Where("user_id = ? AND date = ?", userID, date).
		Pluck("commitment_id", &ids).Error
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

func (r *commitmentRepository) ListAllLogs(ctx context.Context, userID string) ([]models.CommitmentLog, error) {
	logs := []models.CommitmentLog{}
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Order("date ASC").Find(&logs).Error
	return logs, err
}

func (r *commitmentRepository) LogsChangedSince(ctx context.Context, userID string, since time.Time) ([]models.CommitmentLog, error) {
	logs := []models.CommitmentLog{}
	err := r.db.WithContext(ctx).Unscoped().
		Where("user_id = ? AND (updated_at > ? OR deleted_at > ?)", userID, since, since).
		Order("updated_at ASC").
		Find(&logs).Error
	return logs, err
}

func (r *commitmentRepository) CountLogs(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.CommitmentLog{}).Count(&count).Error
	return count, err
}
