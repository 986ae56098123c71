// Package progress manages progress items: the Eisenhower-matrix task list.
package progress

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
	ErrNotFound        = errors.NotFound("progress item")
	ErrDuplicateID     = errors.AlreadyExists("progress item")
	ErrBlankTitle      = errors.ValidationError("title", "title must not be blank")
	ErrInvalidStatus   = errors.ValidationError("status", "status must be one of todo, in_progress, done")
	ErrInvalidQuadrant = errors.ValidationError("quadrant", "quadrant must be one of do, schedule, delegate, eliminate")
	ErrInvalidSort     = errors.ValidationError("sort", "sort must be one of position, due_date, created_at, updated_at, title")
	ErrInvalidDueDate  = errors.ValidationError("due_date", "due_date must be YYYY-MM-DD")
	ErrRepeatedID      = errors.ValidationError("ids", "ids must not repeat")
)

// Service implements progress item operations for one database handle
type Service struct {
	db     *gorm.DB
	items  repository.ProgressRepository
	events events.Publisher
	now    func() time.Time
}

// NewService creates a progress service. A nil publisher drops change events.
func NewService(db *gorm.DB, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		db:     db,
		items:  repository.NewProgressRepository(db),
		events: publisher,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithTx returns a copy bound to tx that publishes to publisher
func (s *Service) WithTx(tx *gorm.DB, publisher events.Publisher) *Service {
	cp := NewService(tx, publisher)
	cp.now = s.now
	return cp
}

// ListOptions are the query parameters of a listing
type ListOptions struct {
	Status    string
	Quadrant  string
	Important *bool
	Urgent    *bool
	DueBefore string
	DueAfter  string
	Query     string
	Sort      string
	Desc      bool
	Limit     int
	Offset    int
}

func (o ListOptions) filter() (repository.ProgressFilter, error) {
	f := repository.ProgressFilter{
		Important: o.Important,
		Urgent:    o.Urgent,
		Query:     o.Query,
		SortBy:    o.Sort,
		SortDesc:  o.Desc,
		Limit:     o.Limit,
		Offset:    o.Offset,
	}
	if o.Status != "" {
		st := models.ItemStatus(o.Status)
		if !st.Valid() {
			return f, ErrInvalidStatus
		}
		f.Status = &st
	}
	if o.Quadrant != "" {
		q, ok := models.ParseQuadrant(o.Quadrant)
		if !ok {
			return f, ErrInvalidQuadrant
		}
		important, urgent := q.Flags()
		f.Important = &important
		f.Urgent = &urgent
	}
	if o.DueBefore != "" {
		if !util.IsDate(o.DueBefore) {
			return f, errors.ValidationError("due_before", "due_before must be YYYY-MM-DD")
		}
		f.DueBefore = &o.DueBefore
	}
	if o.DueAfter != "" {
		if !util.IsDate(o.DueAfter) {
			return f, errors.ValidationError("due_after", "due_after must be YYYY-MM-DD")
		}
		f.DueAfter = &o.DueAfter
	}
	if o.Sort != "" && !repository.IsValidProgressSort(o.Sort) {
		return f, ErrInvalidSort
	}
	return f, nil
}

// Create adds an item. A client-minted id is kept; reusing any existing id fails.
// When both are given, Status is applied after Progress and wins.
func (s *Service) Create(ctx context.Context, userID string, req dto.CreateProgressItemRequest) (*models.ProgressItem, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, ErrBlankTitle
	}

	item := &models.ProgressItem{
		UserID:      userID,
		Title:       title,
		Description: req.Description,
		Important:   req.Important,
		Urgent:      req.Urgent,
		Status:      models.StatusTodo,
		DueDate:     req.DueDate,
	}

	if req.ID != nil && *req.ID != "" {
		exists, err := s.items.Exists(ctx, *req.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to check id: %w", err)
		}
		if exists {
			return nil, ErrDuplicateID
		}
		item.ID = *req.ID
	}

	if req.Quadrant != nil {
		q, ok := models.ParseQuadrant(*req.Quadrant)
		if !ok {
			return nil, ErrInvalidQuadrant
		}
		item.Important, item.Urgent = q.Flags()
	}
	if req.DueDate != nil && !util.IsDate(*req.DueDate) {
		return nil, ErrInvalidDueDate
	}

	now := s.now()
	if req.Progress != nil {
		item.SetProgress(*req.Progress, now)
	}
	if req.Status != nil {
		st := models.ItemStatus(*req.Status)
		if !st.Valid() {
			return nil, ErrInvalidStatus
		}
		item.SetStatus(st, now)
	}

	if req.Position != nil {
		item.Position = *req.Position
	} else {
		pos, err := s.items.NextPosition(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("failed to compute position: %w", err)
		}
		item.Position = pos
	}

	if err := s.items.Create(ctx, item); err != nil {
		if stderrors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateID
		}
		return nil, fmt.Errorf("failed to create progress item: %w", err)
	}

	metrics.RecordEntityChange(models.EntityProgressItem, models.ActionCreate)
	if item.IsDone() {
		metrics.RecordItemCompleted()
	}
	s.publish(ctx, userID, models.ActionCreate, item.ID, item)
	return item, nil
}

// Get returns one of the user's items
func (s *Service) Get(ctx context.Context, userID, id string) (*models.ProgressItem, error) {
	item, err := s.items.Get(ctx, userID, id)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return item, nil
}

// List returns a page of items plus the unpaged total
func (s *Service) List(ctx context.Context, userID string, opts ListOptions) ([]models.ProgressItem, int64, error) {
	f, err := opts.filter()
	if err != nil {
		return nil, 0, err
	}
	return s.items.List(ctx, userID, f)
}

// Update applies a partial update. Quadrant overrides Important and Urgent;
// Status is applied after Progress.
func (s *Service) Update(ctx context.Context, userID, id string, req dto.UpdateProgressItemRequest) (*models.ProgressItem, error) {
	item, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(item, req); err != nil {
		return nil, err
	}
	if err := s.items.Save(ctx, item); err != nil {
		return nil, fmt.Errorf("failed to update progress item: %w", err)
	}

	metrics.RecordEntityChange(models.EntityProgressItem, models.ActionUpdate)
	s.publish(ctx, userID, models.ActionUpdate, item.ID, item)
	return item, nil
}

func (s *Service) apply(item *models.ProgressItem, req dto.UpdateProgressItemRequest) error {
	wasDone := item.IsDone()
	now := s.now()

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return ErrBlankTitle
		}
		item.Title = title
	}
	if req.Description != nil {
		item.Description = *req.Description
	}
	if req.Important != nil {
		item.Important = *req.Important
	}
	if req.Urgent != nil {
		item.Urgent = *req.Urgent
	}
	if req.Quadrant != nil {
		q, ok := models.ParseQuadrant(*req.Quadrant)
		if !ok {
			return ErrInvalidQuadrant
		}
		item.Important, item.Urgent = q.Flags()
	}
	if req.DueDate.Set {
		if req.DueDate.Value != nil && !util.IsDate(*req.DueDate.Value) {
			return ErrInvalidDueDate
		}
		item.DueDate = req.DueDate.Value
	}
	if req.Position != nil {
		item.Position = *req.Position
	}
	if req.Progress != nil {
		item.SetProgress(*req.Progress, now)
	}
	if req.Status != nil {
		st := models.ItemStatus(*req.Status)
		if !st.Valid() {
			return ErrInvalidStatus
		}
		if st != item.Status {
			item.SetStatus(st, now)
		}
	}

	if !wasDone && item.IsDone() {
		metrics.RecordItemCompleted()
	}
	return nil
}

// Complete marks an item done. Completing a done item is a no-op.
func (s *Service) Complete(ctx context.Context, userID, id string) (*models.ProgressItem, error) {
	done := string(models.StatusDone)
	return s.Update(ctx, userID, id, dto.UpdateProgressItemRequest{Status: &done})
}

// Delete soft-deletes an item and unlinks timeline events pointing at it
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repository.NewProgressRepository(tx).Delete(ctx, userID, id); err != nil {
			return err
		}
		return repository.NewTimelineRepository(tx).UnlinkProgressItem(ctx, userID, id)
	})
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to delete progress item: %w", err)
	}

	metrics.RecordEntityChange(models.EntityProgressItem, models.ActionDelete)
	s.publish(ctx, userID, models.ActionDelete, id, nil)
	return nil
}

// Reorder assigns positions 0..n-1 in the order given
func (s *Service) Reorder(ctx context.Context, userID string, ids []string) ([]models.ProgressItem, error) {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, ErrRepeatedID
		}
		seen[id] = struct{}{}
	}

	if err := s.items.Reorder(ctx, userID, ids); err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to reorder: %w", err)
	}

	for _, id := range ids {
		s.publish(ctx, userID, models.ActionUpdate, id, nil)
	}

	items, _, err := s.items.List(ctx, userID, repository.ProgressFilter{SortBy: "position"})
	return items, err
}

// Matrix groups the user's open items by quadrant
func (s *Service) Matrix(ctx context.Context, userID string) (map[models.Quadrant][]models.ProgressItem, error) {
	items, err := s.items.ListOpen(ctx, userID)
	if err != nil {
		return nil, err
	}
	return GroupByQuadrant(items), nil
}

// GroupByQuadrant buckets items by quadrant. All four keys are always present.
func GroupByQuadrant(items []models.ProgressItem) map[models.Quadrant][]models.ProgressItem {
	groups := make(map[models.Quadrant][]models.ProgressItem, len(models.Quadrants))
	for _, q := range models.Quadrants {
		groups[q] = []models.ProgressItem{}
	}
	for _, item := range items {
		q := models.QuadrantFor(item.Important, item.Urgent)
		groups[q] = append(groups[q], item)
	}
	return groups
}

func (s *Service) publish(ctx context.Context, userID, action, id string, item *models.ProgressItem) {
	change := events.Change{
		UserID:   userID,
		Entity:   models.EntityProgressItem,
		Action:   action,
		EntityID: id,
	}
	if item != nil {
		change.Object = item
	}
	s.events.Publish(ctx, change)
	logger.Log.Debug("Progress item changed",
		logger.WithUserID(userID),
		logger.WithEntity(models.EntityProgressItem, id),
		zap.String("action", action),
	)
}
