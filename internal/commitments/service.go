// Package commitments manages recurring habits and their daily check-ins.
package commitments

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/zfogg/daybook/internal/dto"
	"github.com/zfogg/daybook/internal/errors"
	"github.com/zfogg/daybook/internal/events"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/metrics"
	"github.com/zfogg/daybook/internal/models"
	"github.com/zfogg/daybook/internal/repository"
	"github.com/zfogg/daybook/internal/util"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const defaultColor = "#4f46e5"

var (
	ErrNotFound         = errors.NotFound("commitment")
	ErrLogNotFound      = errors.NotFound("check-in")
	ErrDuplicateID      = errors.AlreadyExists("commitment")
	ErrAlreadyCheckedIn = errors.AlreadyExists("check-in for this date")
	ErrBlankTitle       = errors.ValidationError("title", "title must not be blank")
	ErrEmptySchedule    = errors.ValidationError("schedule", "schedule must contain at least one weekday")
	ErrInvalidSchedule  = errors.ValidationError("schedule", "schedule entries must be weekday names like mon, tue")
	ErrEndBeforeStart   = errors.ValidationError("end_date", "end_date must not be before start_date")
	ErrInvalidDate      = errors.ValidationError("date", "date must be YYYY-MM-DD")
	ErrFutureDate       = errors.ValidationError("date", "cannot check in for a future date")
	ErrNotScheduled     = errors.ValidationError("date", "commitment is not scheduled on this date")
	ErrArchived         = errors.New(errors.ErrConflict, "commitment is archived")
)

// Service implements commitment and check-in operations
type Service struct {
	db          *gorm.DB
	commitments repository.CommitmentRepository
	events      events.Publisher
	now         func() time.Time
}

// NewService creates a commitments service. A nil publisher drops change events.
func NewService(db *gorm.DB, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		db:          db,
		commitments: repository.NewCommitmentRepository(db),
		events:      publisher,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithTx returns a copy bound to tx that publishes to publisher
func (s *Service) WithTx(tx *gorm.DB, publisher events.Publisher) *Service {
	cp := NewService(tx, publisher)
	cp.now = s.now
	return cp
}

// Today is the user's current calendar date
func (s *Service) Today(user *models.User) string {
	return util.TodayIn(user.Timezone, s.now())
}

// Create adds a commitment. StartDate defaults to the user's today.
func (s *Service) Create(ctx context.Context, user *models.User, req dto.CreateCommitmentRequest) (*models.Commitment, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, ErrBlankTitle
	}
	schedule, err := parseSchedule(req.Schedule)
	if err != nil {
		return nil, err
	}

	c := &models.Commitment{
		UserID:      user.ID,
		Title:       title,
		Description: req.Description,
		Schedule:    schedule,
		StartDate:   s.Today(user),
		EndDate:     req.EndDate,
		Color:       defaultColor,
		Archived:    req.Archived,
	}
	if req.StartDate != nil {
		c.StartDate = *req.StartDate
	}
	if req.Color != nil {
		c.Color = strings.ToLower(*req.Color)
	}
	if err := validateDates(c); err != nil {
		return nil, err
	}

	if req.ID != nil && *req.ID != "" {
		exists, err := s.commitments.Exists(ctx, *req.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check id: %w", err)
		}
		if exists {
			return nil, ErrDuplicateID
		}
		c.ID = *req.ID
	}

	if err := s.commitments.Create(ctx, c); err != nil {
		if stderrors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateID
		}
		return nil, fmt.Errorf("failed to create commitment: %w", err)
	}

	metrics.RecordEntityChange(models.EntityCommitment, models.ActionCreate)
	s.publish(ctx, user.ID, models.EntityCommitment, models.ActionCreate, c.ID, c)
	return c, nil
}

// Get returns one of the user's commitments
func (s *Service) Get(ctx context.Context, userID, id string) (*models.Commitment, error) {
	c, err := s.commitments.Get(ctx, userID, id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return c, nil
}

// List returns the user's commitments; archived filters when non-nil
func (s *Service) List(ctx context.Context, userID string, archived *bool) ([]models.Commitment, error) {
	return s.commitments.List(ctx, userID, archived)
}

// Update applies a partial update. Existing check-ins are kept even when the
// new schedule or date range no longer covers them.
func (s *Service) Update(ctx context.Context, userID, id string, req dto.UpdateCommitmentRequest) (*models.Commitment, error) {
	c, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, ErrBlankTitle
		}
		c.Title = title
	}
	if req.Description != nil {
		c.Description = *req.Description
	}
	if req.Schedule != nil {
		schedule, err := parseSchedule(req.Schedule)
		if err != nil {
			return nil, err
		}
		c.Schedule = schedule
	}
	if req.StartDate != nil {
		c.StartDate = *req.StartDate
	}
	if req.EndDate.Set {
		c.EndDate = req.EndDate.Value
	}
	if req.Color != nil {
		c.Color = strings.ToLower(*req.Color)
	}
	if req.Archived != nil {
		c.Archived = *req.Archived
	}
	if err := validateDates(c); err != nil {
		return nil, err
	}

	if err := s.commitments.Save(ctx, c); err != nil {
		return nil, fmt.Errorf("failed to update commitment: %w", err)
	}

	metrics.RecordEntityChange(models.EntityCommitment, models.ActionUpdate)
	s.publish(ctx, userID, models.EntityCommitment, models.ActionUpdate, c.ID, c)
	return c, nil
}

// Delete soft-deletes a commitment together with its check-ins
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.commitments.Delete(ctx, userID, id); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete commitment: %w", err)
	}

	metrics.RecordEntityChange(models.EntityCommitment, models.ActionDelete)
	s.publish(ctx, userID, models.EntityCommitment, models.ActionDelete, id, nil)
	return nil
}

// CheckIn records the commitment as kept on req.Date. The date must be scheduled,
// inside the commitment's date range, and not after the user's today.
// Checking in again after an undo revives the earlier log.
func (s *Service) CheckIn(ctx context.Context, user *models.User, commitmentID string, req dto.CheckInRequest) (*models.CommitmentLog, error) {
	c, err := s.Get(ctx, user.ID, commitmentID)
	if err != nil {
		return nil, err
	}
	if c.Archived {
		return nil, ErrArchived
	}

	day, err := util.ParseDate(req.Date)
	if err != nil {
		return nil, ErrInvalidDate
	}
	if req.Date > s.Today(user) {
		return nil, ErrFutureDate
	}
	if !c.IsScheduledOn(day) {
		return nil, ErrNotScheduled
	}

	existing, err := s.commitments.GetLogUnscoped(ctx, c.ID, req.Date)
	switch {
	case err == nil && !existing.DeletedAt.Valid:
		return nil, ErrAlreadyCheckedIn
	case err == nil:
		existing.Note = req.Note
		if err := s.commitments.RestoreLog(ctx, existing); err != nil {
			return nil, fmt.Errorf("failed to restore check-in: %w", err)
		}
		restored, err := s.commitments.GetLogByID(ctx, user.ID, existing.ID)
		if err != nil {
			return nil, err
		}
		s.afterCheckIn(ctx, user.ID, restored)
		return restored, nil
	case !stderrors.Is(err, repository.ErrNotFound):
		return nil, err
	}

	log := &models.CommitmentLog{
		CommitmentID: c.ID,
		UserID:       user.ID,
		Date:         req.Date,
		Note:         req.Note,
	}
	if req.ID != nil {
		log.ID = *req.ID
	}
	if err := s.commitments.CreateLog(ctx, log); err != nil {
		if stderrors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyCheckedIn
		}
		return nil, fmt.Errorf("failed to create check-in: %w", err)
	}
	s.afterCheckIn(ctx, user.ID, log)
	return log, nil
}

func (s *Service) afterCheckIn(ctx context.Context, userID string, log *models.CommitmentLog) {
	metrics.RecordCheckIn("checkin")
	metrics.RecordEntityChange(models.EntityCommitmentLog, models.ActionCreate)
	s.publish(ctx, userID, models.EntityCommitmentLog, models.ActionCreate, log.ID, log)
}

// UndoCheckIn removes the check-in for date
func (s *Service) UndoCheckIn(ctx context.Context, userID, commitmentID, date string) error {
	c, err := s.Get(ctx, userID, commitmentID)
	if err != nil {
		return err
	}
	if !util.IsDate(date) {
		return ErrInvalidDate
	}
	log, err := s.commitments.GetLogUnscoped(ctx, c.ID, date)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return ErrLogNotFound
		}
		return err
	}
	if log.DeletedAt.Valid {
		return ErrLogNotFound
	}
	if err := s.commitments.DeleteLog(ctx, c.ID, date); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return ErrLogNotFound
		}
		return fmt.Errorf("failed to undo check-in: %w", err)
	}

	metrics.RecordCheckIn("undo")
	metrics.RecordEntityChange(models.EntityCommitmentLog, models.ActionDelete)
	s.publish(ctx, userID, models.EntityCommitmentLog, models.ActionDelete, log.ID, nil)
	return nil
}

// GetLog returns one check-in by id
func (s *Service) GetLog(ctx context.Context, userID, id string) (*models.CommitmentLog, error) {
	log, err := s.commitments.GetLogByID(ctx, userID, id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, ErrLogNotFound
		}
		return nil, err
	}
	return log, nil
}

// UpdateLogNote changes the note of a check-in
func (s *Service) UpdateLogNote(ctx context.Context, userID, id, note string) (*models.CommitmentLog, error) {
	log, err := s.GetLog(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	log.Note = note
	if err := s.db.WithContext(ctx).Save(log).Error; err != nil {
		return nil, fmt.Errorf("failed to update check-in: %w", err)
	}
	metrics.RecordEntityChange(models.EntityCommitmentLog, models.ActionUpdate)
	s.publish(ctx, userID, models.EntityCommitmentLog, models.ActionUpdate, log.ID, log)
	return log, nil
}

// DeleteLog removes a check-in by id
func (s *Service) DeleteLog(ctx context.Context, userID, id string) error {
	if err := s.commitments.DeleteLogByID(ctx, userID, id); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return ErrLogNotFound
		}
		return err
	}
	metrics.RecordCheckIn("undo")
	metrics.RecordEntityChange(models.EntityCommitmentLog, models.ActionDelete)
	s.publish(ctx, userID, models.EntityCommitmentLog, models.ActionDelete, id, nil)
	return nil
}

// Logs lists check-ins in [from, to]; empty bounds are open
func (s *Service) Logs(ctx context.Context, userID, commitmentID, from, to string) ([]models.CommitmentLog, error) {
	c, err := s.Get(ctx, userID, commitmentID)
	if err != nil {
		return nil, err
	}
	if from != "" && !util.IsDate(from) {
		return nil, errors.ValidationError("from", "from must be YYYY-MM-DD")
	}
	if to != "" && !util.IsDate(to) {
		return nil, errors.ValidationError("to", "to must be YYYY-MM-DD")
	}
	return s.commitments.ListLogs(ctx, c.ID, from, to)
}

func (s *Service) publish(ctx context.Context, userID, entity, action, id string, obj interface{}) {
	change := events.Change{
		UserID:   userID,
		Entity:   entity,
		Action:   action,
		EntityID: id,
	}
	if obj != nil {
		change.Object = obj
	}
	s.events.Publish(ctx, change)
	logger.Log.Debug("Commitment data changed",
		logger.WithUserID(userID),
		logger.WithEntity(entity, id),
		zap.String("action", action),
	)
}

func parseSchedule(names []string) (models.WeekdayMask, error) {
	if len(names) == 0 {
		return 0, ErrEmptySchedule
	}
	mask, err := models.ParseWeekdays(names)
	if err != nil {
		return 0, ErrInvalidSchedule
	}
	if mask.IsEmpty() {
		return 0, ErrEmptySchedule
	}
	return mask, nil
}

func validateDates(c *models.Commitment) error {
	if !util.IsDate(c.StartDate) {
		return errors.ValidationError("start_date", "start_date must be YYYY-MM-DD")
	}
	if c.EndDate != nil {
		if !util.IsDate(*c.EndDate) {
			return errors.ValidationError("end_date", "end_date must be YYYY-MM-DD")
		}
		if *c.EndDate < c.StartDate {
			return ErrEndBeforeStart
		}
	}
	return nil
}
