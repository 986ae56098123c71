// Package offlinesync replays client outbox operations and serves the change feed
// devices use to catch up after being offline.
package offlinesync

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/zfogg/daybook/internal/commitments"
	"github.com/zfogg/daybook/internal/dto"
	"github.com/zfogg/daybook/internal/errors"
	"github.com/zfogg/daybook/internal/events"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/metrics"
	"github.com/zfogg/daybook/internal/models"
	"github.com/zfogg/daybook/internal/progress"
	"github.com/zfogg/daybook/internal/repository"
	"github.com/zfogg/daybook/internal/telemetry"
	"github.com/zfogg/daybook/internal/timeline"
	"github.com/zfogg/daybook/internal/validation"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrTooManyOperations = errors.ValidationError("operations", fmt.Sprintf("at most %d operations per request", dto.MaxSyncOperations))
	ErrUnknownEntity     = errors.ValidationError("entity", "unknown entity")
	ErrUnknownAction     = errors.ValidationError("action", "unknown action")
	ErrMissingEntityID   = errors.ValidationError("entity_id", "entity_id is required for update and delete")
	ErrInvalidPayload    = errors.ValidationError("payload", "payload is not valid JSON for this entity")
)

// Service applies outbox batches
type Service struct {
	db        *gorm.DB
	ops       repository.SyncRepository
	publisher events.Publisher
	now       func() time.Time
}

// NewService creates a sync service. Changes are published only after their op commits.
func NewService(db *gorm.DB, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Service{
		db:        db,
		ops:       repository.NewSyncRepository(db),
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Apply replays ops in order. Each op runs in its own transaction; the result of
// every op that reached a decision is stored so a retried op_id gets the same answer.
func (s *Service) Apply(ctx context.Context, user *models.User, ops []dto.SyncOperation) (*dto.SyncResponse, error) {
	if len(ops) > dto.MaxSyncOperations {
		return nil, ErrTooManyOperations
	}
	metrics.App().SyncBatchSize.Observe(float64(len(ops)))
	ctx, span := telemetry.Start(ctx, "sync.apply",
		attribute.String("user.id", user.ID),
		attribute.Int("sync.operations", len(ops)),
	)
	defer span.End()

	results := make([]dto.SyncResult, 0, len(ops))
	for _, op := range ops {
		res := s.applyOne(ctx, user, op)
		metrics.RecordSyncOperation(op.Entity, res.Status)
		results = append(results, res)
	}

	logger.Log.Info("Replayed offline operations",
		logger.WithUserID(user.ID),
		zap.Int("operations", len(ops)),
	)
	return &dto.SyncResponse{Results: results, ServerTime: s.now()}, nil
}

func (s *Service) applyOne(ctx context.Context, user *models.User, op dto.SyncOperation) dto.SyncResult {
	if prev, ok := s.previous(ctx, user.ID, op.OpID); ok {
		return prev
	}

	buf := &events.Buffer{}
	var res dto.SyncResult
	var internal error

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res, internal = s.dispatch(ctx, tx, buf, user, op)
		if internal != nil {
			return internal
		}
		return s.record(ctx, tx, user.ID, op, res)
	})
	if err != nil {
		buf.Discard()
		if stderrors.Is(err, repository.ErrDuplicate) {
			// the same op_id was replayed concurrently
			if prev, ok := s.previous(ctx, user.ID, op.OpID); ok {
				return prev
			}
		}
		logger.Log.Error("Offline operation failed",
			logger.WithUserID(user.ID),
			zap.String("op_id", op.OpID),
			zap.String("entity", op.Entity),
			zap.Error(err),
		)
		// not recorded: the client should retry
		return dto.SyncResult{
			OpID:     op.OpID,
			Status:   models.SyncRejected,
			EntityID: op.EntityID,
			Error:    &dto.SyncError{Code: string(errors.ErrInternalError), Message: "operation could not be applied, retry later"},
		}
	}

	buf.Flush(ctx, s.publisher)
	return res
}

func (s *Service) previous(ctx context.Context, userID, opID string) (dto.SyncResult, bool) {
	rec, err := s.ops.GetOp(ctx, userID, opID)
	if err != nil {
		return dto.SyncResult{}, false
	}
	var res dto.SyncResult
	if rec.Result != "" {
		if err := json.Unmarshal([]byte(rec.Result), &res); err != nil {
			logger.Log.Warn("Stored sync result is unreadable", zap.String("op_id", opID), zap.Error(err))
		}
	}
	res.OpID = opID
	res.EntityID = rec.EntityID
	res.Status = models.SyncDuplicate
	return res, true
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, userID string, op dto.SyncOperation, res dto.SyncResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to encode sync result: %w", err)
	}
	return repository.NewSyncRepository(tx).RecordOp(ctx, &models.SyncOperation{
		UserID:   userID,
		OpID:     op.OpID,
		Entity:   op.Entity,
		Action:   op.Action,
		EntityID: res.EntityID,
		Status:   res.Status,
		Result:   string(payload),
	})
}

// dispatch applies one op inside a savepoint. Only unexpected failures are
// returned as errors; rejections and conflicts are results.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, buf *events.Buffer, user *models.User, op dto.SyncOperation) (dto.SyncResult, error) {
	res := dto.SyncResult{OpID: op.OpID, EntityID: op.EntityID}

	newHandler, ok := handlers[op.Entity]
	if !ok {
		return reject(res, ErrUnknownEntity), nil
	}

	if op.Action != models.ActionCreate && op.EntityID == "" {
		return reject(res, ErrMissingEntityID), nil
	}

	var out outcome
	err := tx.Transaction(func(sp *gorm.DB) error {
		h := newHandler(sp, buf)
		var err error
		switch op.Action {
		case models.ActionCreate:
			out, err = h.create(ctx, user, op)
		case models.ActionUpdate:
			out, err = h.update(ctx, user, op)
		case models.ActionDelete:
			out, err = h.remove(ctx, user, op)
		default:
			err = ErrUnknownAction
		}
		if err == nil && out.conflict {
			return errConflict
		}
		return err
	})

	switch {
	case err == nil:
		res.Status = models.SyncApplied
		if out.id != "" {
			res.EntityID = out.id
		}
		res.Entity = out.entity
		return res, nil
	case stderrors.Is(err, errConflict):
		buf.Discard()
		res.Status = models.SyncConflict
		res.Entity = out.entity
		return res, nil
	}

	buf.Discard()
	if rejected, ok := asRejection(res, err); ok {
		return rejected, nil
	}
	return res, err
}

var errConflict = stderrors.New("client copy is stale")

var handlers = map[string]func(db *gorm.DB, buf *events.Buffer) handler{
	models.EntityProgressItem: func(db *gorm.DB, buf *events.Buffer) handler {
		return &progressHandler{svc: progress.NewService(db, buf)}
	},
	models.EntityCommitment: func(db *gorm.DB, buf *events.Buffer) handler {
		return &commitmentHandler{svc: commitments.NewService(db, buf)}
	},
	models.EntityCommitmentLog: func(db *gorm.DB, buf *events.Buffer) handler {
		return &logHandler{svc: commitments.NewService(db, buf)}
	},
	models.EntityTimelineEvent: func(db *gorm.DB, buf *events.Buffer) handler {
		return &timelineHandler{svc: timeline.NewService(db, buf)}
	},
}

// outcome is what an entity handler did. conflict means the server copy in entity won.
type outcome struct {
	id       string
	entity   interface{}
	conflict bool
}

type handler interface {
	create(ctx context.Context, user *models.User, op dto.SyncOperation) (outcome, error)
	update(ctx context.Context, user *models.User, op dto.SyncOperation) (outcome, error)
	remove(ctx context.Context, user *models.User, op dto.SyncOperation) (outcome, error)
}

// stale reports whether the client edited an older version than the server holds
// stale compares at microsecond precision, the resolution postgres keeps
func stale(op dto.SyncOperation, serverUpdatedAt time.Time) bool {
	if op.ClientUpdatedAt == nil {
		return false
	}
	return op.ClientUpdatedAt.Truncate(time.Microsecond).Before(serverUpdatedAt.Truncate(time.Microsecond))
}

// decode unmarshals and validates the payload with the HTTP binding rules
func decode(op dto.SyncOperation, dst interface{}) error {
	if len(op.Payload) == 0 {
		return ErrInvalidPayload
	}
	if err := json.Unmarshal(op.Payload, dst); err != nil {
		return ErrInvalidPayload.WithDetails(err.Error())
	}
	return validation.Struct(dst)
}

func reject(res dto.SyncResult, apiErr *errors.APIError) dto.SyncResult {
	res.Status = models.SyncRejected
	res.Error = &dto.SyncError{Code: string(apiErr.Code), Message: apiErr.Message, Field: apiErr.Field}
	return res
}

// asRejection turns client-caused errors into a rejected result
func asRejection(res dto.SyncResult, err error) (dto.SyncResult, bool) {
	var apiErr *errors.APIError
	if stderrors.As(err, &apiErr) {
		return reject(res, apiErr), true
	}
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return reject(res, errors.ValidationError(fe.Field(), fmt.Sprintf("failed on the '%s' rule", fe.Tag()))), true
	}
	switch {
	case stderrors.Is(err, repository.ErrNotFound):
		return reject(res, errors.NotFound(res.EntityID)), true
	case stderrors.Is(err, repository.ErrDuplicate):
		return reject(res, errors.Conflict("entity")), true
	case stderrors.Is(err, repository.ErrInvalidInput):
		return reject(res, errors.BadRequest(err.Error())), true
	}
	return res, false
}

// Changes returns every entity the user changed after since, tombstones included,
// oldest first. ServerTime is taken before reading so nothing slips between cursors.
func (s *Service) Changes(ctx context.Context, userID string, since time.Time) (*dto.ChangesResponse, error) {
	serverTime := s.now()
	var changes []dto.Change

	items, err := repository.NewProgressRepository(s.db).ChangedSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress changes: %w", err)
	}
	for i := range items {
		changes = append(changes, change(models.EntityProgressItem, items[i].ID, items[i].UpdatedAt, items[i].DeletedAt, &items[i]))
	}

	cr := repository.NewCommitmentRepository(s.db)
	cs, err := cr.ChangedSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load commitment changes: %w", err)
	}
	for i := range cs {
		changes = append(changes, change(models.EntityCommitment, cs[i].ID, cs[i].UpdatedAt, cs[i].DeletedAt, &cs[i]))
	}

	logs, err := cr.LogsChangedSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load check-in changes: %w", err)
	}
	for i := range logs {
		changes = append(changes, change(models.EntityCommitmentLog, logs[i].ID, logs[i].UpdatedAt, logs[i].DeletedAt, &logs[i]))
	}

	evs, err := repository.NewTimelineRepository(s.db).ChangedSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load timeline changes: %w", err)
	}
	for i := range evs {
		changes = append(changes, change(models.EntityTimelineEvent, evs[i].ID, evs[i].UpdatedAt, evs[i].DeletedAt, &evs[i]))
	}

	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].UpdatedAt.Before(changes[j].UpdatedAt)
	})
	if changes == nil {
		changes = []dto.Change{}
	}
	return &dto.ChangesResponse{Changes: changes, ServerTime: serverTime}, nil
}

func change(entity, id string, updatedAt time.Time, deletedAt gorm.DeletedAt, data interface{}) dto.Change {
	c := dto.Change{Entity: entity, ID: id, UpdatedAt: updatedAt}
	if deletedAt.Valid {
		c.Deleted = true
		if deletedAt.Time.After(updatedAt) {
			c.UpdatedAt = deletedAt.Time
		}
		return c
	}
	c.Data = data
	return c
}
