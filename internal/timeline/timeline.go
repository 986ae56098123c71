// Package timeline manages scheduled events on the user's calendar.
package timeline

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

var (
	ErrNotFound           = errors.NotFound("timeline event")
	ErrDuplicateID        = errors.AlreadyExists("timeline event")
	ErrBlankTitle         = errors.ValidationError("title", "title must not be blank")
	ErrEndBeforeStart     = errors.ValidationError("ends_at", "ends_at must not be before starts_at")
	ErrInvalidRange       = errors.ValidationError("to", "to must be after from")
	ErrLinkedItemNotFound = errors.ValidationError("progress_item_id", "linked progress item does not exist")
	ErrInvalidDate        = errors.ValidationError("date", "date must be YYYY-MM-DD")
)

// Service handles timeline events
type Service struct {
	db     *gorm.DB
	events repository.TimelineRepository
	items  repository.ProgressRepository
	bus    events.Publisher
}

// NewService creates a timeline service. A nil publisher drops change events.
func NewService(db *gorm.DB, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		db:     db,
		events: repository.NewTimelineRepository(db),
		items:  repository.NewProgressRepository(db),
		bus:    publisher,
	}
}

// WithTx returns a copy bound to tx that publishes to publisher
func (s *Service) WithTx(tx *gorm.DB, publisher events.Publisher) *Service {
	return NewService(tx, publisher)
}

// Create schedules an event. EndsAt defaults to StartsAt; all-day events are
// stretched to whole days in the user's timezone.
func (s *Service) Create(ctx context.Context, user *models.User, req dto.CreateTimelineEventRequest) (*models.TimelineEvent, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, ErrBlankTitle
	}

	e := &models.TimelineEvent{
		UserID:      user.ID,
		Title:       title,
		Description: req.Description,
		Location:    req.Location,
		StartsAt:    req.StartsAt,
		EndsAt:      req.StartsAt,
		AllDay:      req.AllDay,
	}
	if req.EndsAt != nil {
		e.EndsAt = *req.EndsAt
	}
	if req.Color != nil {
		e.Color = strings.ToLower(*req.Color)
	}
	if err := s.normalise(e, user.Timezone); err != nil {
		return nil, err
	}
	if req.ProgressItemID != nil && *req.ProgressItemID != "" {
		if err := s.checkLink(ctx, user.ID, *req.ProgressItemID); err != nil {
			return nil, err
		}
		e.ProgressItemID = req.ProgressItemID
	}

	if req.ID != nil && *req.ID != "" {
		exists, err := s.events.Exists(ctx, *req.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check id: %w", err)
		}
		if exists {
			return nil, ErrDuplicateID
		}
		e.ID = *req.ID
	}

	if err := s.events.Create(ctx, e); err != nil {
		if stderrors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateID
		}
		return nil, fmt.Errorf("failed to create timeline event: %w", err)
	}

	metrics.RecordEntityChange(models.EntityTimelineEvent, models.ActionCreate)
	s.publish(ctx, user.ID, models.ActionCreate, e.ID, e)
	return e, nil
}

// Get returns one of the user's events
func (s *Service) Get(ctx context.Context, userID, id string) (*models.TimelineEvent, error) {
	e, err := s.events.Get(ctx, userID, id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// Update applies a partial update
func (s *Service) Update(ctx context.Context, user *models.User, id string, req dto.UpdateTimelineEventRequest) (*models.TimelineEvent, error) {
	e, err := s.Get(ctx, user.ID, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, ErrBlankTitle
		}
		e.Title = title
	}
	if req.Description != nil {
		e.Description = *req.Description
	}
	if req.Location != nil {
		e.Location = *req.Location
	}
	allDay := e.AllDay
	if req.AllDay != nil {
		allDay = *req.AllDay
	}
	if req.StartsAt != nil {
		// moving the start keeps the length unless a new end is given;
		// all-day events keep their day count, timed events their duration
		if e.AllDay && allDay {
			e.StartsAt, e.EndsAt = ShiftAllDay(e.StartsAt, e.EndsAt, *req.StartsAt, location(user.Timezone))
		} else {
			duration := e.EndsAt.Sub(e.StartsAt)
			e.StartsAt = *req.StartsAt
			e.EndsAt = req.StartsAt.Add(duration)
		}
	}
	if req.EndsAt != nil {
		e.EndsAt = *req.EndsAt
	}
	e.AllDay = allDay
	if req.Color != nil {
		e.Color = strings.ToLower(*req.Color)
	}
	if err := s.normalise(e, user.Timezone); err != nil {
		return nil, err
	}
	if req.ProgressItemID.Set {
		if v := req.ProgressItemID.Value; v != nil && *v != "" {
			if err := s.checkLink(ctx, user.ID, *v); err != nil {
				return nil, err
			}
			e.ProgressItemID = v
		} else {
			e.ProgressItemID = nil
		}
	}

	if err := s.events.Save(ctx, e); err != nil {
		return nil, fmt.Errorf("failed to update timeline event: %w", err)
	}

	metrics.RecordEntityChange(models.EntityTimelineEvent, models.ActionUpdate)
	s.publish(ctx, user.ID, models.ActionUpdate, e.ID, e)
	return e, nil
}

// Delete soft-deletes an event
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if err := s.events.Delete(ctx, userID, id); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete timeline event: %w", err)
	}

	metrics.RecordEntityChange(models.EntityTimelineEvent, models.ActionDelete)
	s.publish(ctx, userID, models.ActionDelete, id, nil)
	return nil
}

// Range returns events overlapping [from, to) ordered by start time then title
func (s *Service) Range(ctx context.Context, userID string, from, to time.Time) ([]models.TimelineEvent, error) {
	if !to.After(from) {
		return nil, ErrInvalidRange
	}
	return s.events.Range(ctx, userID, from.UTC(), to.UTC())
}

// Day returns the events overlapping the calendar day date in tz
func (s *Service) Day(ctx context.Context, userID, date, tz string) ([]models.TimelineEvent, error) {
	start, end, err := util.LocalDayBounds(date, location(tz))
	if err != nil {
		return nil, ErrInvalidDate
	}
	return s.Range(ctx, userID, start, end)
}

func (s *Service) checkLink(ctx context.Context, userID, itemID string) error {
	if _, err := s.items.Get(ctx, userID, itemID); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return ErrLinkedItemNotFound
		}
		return err
	}
	return nil
}

// normalise validates the time span and snaps all-day events to local midnights
func (s *Service) normalise(e *models.TimelineEvent, tz string) error {
	if e.EndsAt.Before(e.StartsAt) {
		return ErrEndBeforeStart
	}
	if e.AllDay {
		e.StartsAt, e.EndsAt = AllDaySpan(e.StartsAt, e.EndsAt, location(tz))
	}
	e.StartsAt = e.StartsAt.UTC()
	e.EndsAt = e.EndsAt.UTC()
	return nil
}

// AllDaySpan widens [start, end] to whole days in loc. An end that already sits
// on a local midnight after start is treated as exclusive.
func AllDaySpan(start, end time.Time, loc *time.Location) (time.Time, time.Time) {
	ls, le := start.In(loc), end.In(loc)
	from := time.Date(ls.Year(), ls.Month(), ls.Day(), 0, 0, 0, 0, loc)
	to := time.Date(le.Year(), le.Month(), le.Day(), 0, 0, 0, 0, loc)
	if !le.Equal(to) || !to.After(from) {
		to = to.AddDate(0, 0, 1)
	}
	return from, to
}

// ShiftAllDay moves an all-day span so it starts on the local day of to,
// keeping its length in calendar days rather than hours
func ShiftAllDay(start, end, to time.Time, loc *time.Location) (time.Time, time.Time) {
	from, until := AllDaySpan(start, end, loc)
	days := calendarDays(from.In(loc), until.In(loc))
	lt := to.In(loc)
	newStart := time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
	return newStart, newStart.AddDate(0, 0, days)
}

// calendarDays counts local midnights crossed from a to b
func calendarDays(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	days := int(db.Sub(da).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

func location(tz string) *time.Location {
	loc, err := util.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (s *Service) publish(ctx context.Context, userID, action, id string, e *models.TimelineEvent) {
	change := events.Change{
		UserID:   userID,
		Entity:   models.EntityTimelineEvent,
		Action:   action,
		EntityID: id,
	}
	if e != nil {
		change.Object = e
	}
	s.bus.Publish(ctx, change)
	logger.Log.Debug("Timeline event changed",
		logger.WithUserID(userID),
		logger.WithEntity(models.EntityTimelineEvent, id),
		zap.String("action", action),
	)
}
