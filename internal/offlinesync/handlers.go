package offlinesync

import (
	"context"
	stderrors "errors"

	"github.com/zfogg/daybook/internal/commitments"
	"github.com/zfogg/daybook/internal/dto"
	"github.com/zfogg/daybook/internal/models"
	"github.com/zfogg/daybook/internal/progress"
	"github.com/zfogg/daybook/internal/timeline"
)

// clientID is the id a create should use: the payload's, else the op's entity_id
func clientID(payloadID *string, op dto.SyncOperation) *string {
	if payloadID != nil && *payloadID != "" {
		return payloadID
	}
	if op.EntityID != "" {
		id := op.EntityID
		return &id
	}
	return nil
}

type progressHandler struct {
	svc *progress.Service
}

func (h *progressHandler) create(ctx context.Context, user *models.User, op dto.SyncOperation) (outcome, error) {
	var req dto.CreateProgressItemRequest
	if err := decode(op, &req); err != nil {
		return outcome{}, err
	}
	req.ID = clientID(req.ID, op)
	item, err := h.svc.Create(ctx, user.ID, req)
	if stderrors.Is(err, progress.ErrDuplicateID) && req.ID != nil {
		if existing, gerr := h.svc.Get(ctx, user.ID, *req.ID); gerr == nil {
			return outcome{id: existing.ID, entity: existing, conflict: true}, nil
		}
	}
	if err != nil {
		return outcome{}, err
	}
	return outcome{id: item.ID, entity: item}, nil
}

func (h *progressHandler) update(ctx context.Context, user *models.User, op dto.SyncOperation) (outcome, error) {
	existing, err := h.svc.Get(ctx, user.ID, op.EntityID)
	if err != nil {
		return outcome{}, err
	}
	if stale(op, existing.UpdatedAt) {
		return outcome{id: existing.ID, entity: existing, conflict: true}, nil
	}
	var req dto.UpdateProgressItemRequest
	if err := decode(op, &req); err != nil {
		return outcome{}, err
	}
	item, err := h.svc.Update(ctx, user.ID, op.EntityID, req)
	if err != nil {
		return outcome{}, err
	}
	return outcome{id: item.ID, entity: item}, nil
}

func (h *progressHandler) remove(ctx context.Context, user *models.User, op dto.SyncOperation) (outcome, error) {
	existing, err := h.svc.Get(ctx, user.ID, op.EntityID)
	if stderrors.Is(err, progress.ErrNotFound) {
		return outcome{id: op.EntityID}, nil
	}
	if err != nil {
		return outcome{}, err
	}
	if stale(op, existing.UpdatedAt) {
		return outcome{id: existing.ID, entity: existing, conflict: true}, nil
	}
	return outcome{id: op.EntityID}, h.svc.Delete(ctx, user.ID, op.EntityID)
}

type commitmentHandler struct {
	svc *commitments.Service
}

func (h *commitmentHandler) create(ctx context.Context, user *models.User, op dto.SyncOperation) (outcome, error) {
	var req dto.CreateCommitmentRequest
	if err := decode(op, &req); err != nil {
		return outcome{}, err
	}
	req.ID = clientID(req.ID, op)
	c, err := h.svc.Create(ctx, user, req)
	if stderrors.Is(err, commitments.ErrDuplicateID) && req.ID != nil {
		if existing, gerr := h.svc.Get(ctx, user.ID, *req.ID); gerr == nil {
			return outcome{id: existing.ID, entity: existing, conflict: true}, nil
		}
	}
	if err != nil {
		return outcome{}, err
	}
	return outcome{id: c.ID, entity: c}, nil
}

func (h *commitmentHandler) update(ctx context.Context, user *models.User, op dto.SyncOperation) (outcome, error) {
	existing, err := h.svc.Get(ctx, user.ID, op.EntityID)
	if err != nil {
		return outcome{}, err
	}
	if stale(op, existing.UpdatedAt) {
		return outcome{id: existing.ID, entity: existing, conflict: true}, nil
	}
	var req dto.UpdateCommitmentRequest
	if err := decode(op, &req); err != nil {
		return outcome{}, err
	}
	c, err := h.svc.Update(ctx, user.ID, op.EntityID, req)
	if err != nil {
		return outcome{}, err
	}
	return outcome{id: c.ID, entity: c}, nil
}

func (h *commitmentHandler) remove(ctx context.Context, user *models.User, op dto.SyncOperation) (outcome, error) {
	existing, err := h.svc.Get(ctx, user.ID, op.EntityID)
	if stderrors.Is(err, commitments.ErrNotFound) {
		return outcome{id: op.EntityID}, nil
	}
	if err != nil {
		return outcome{}, err
	}
	if stale(op, existing.UpdatedAt) {
		return outcome{id: existing.ID, entity: existing, conflict: true}, nil
	}
	return outcome{id: op.EntityID}, h.svc.Delete(ctx, user.ID, op.EntityID)
}

// logHandler replays check-ins. Updates may only change the note.
type logHandler struct {
	svc *commitments.Service
}

type logNoteUpdate struct {
	Note string `json:"note" binding:"max=1000"`
}

func (h *logHandler) create(ctx context.Context, user *models.User, op dto.SyncOperation) (outcome, error) {
	var p dto.CommitmentLogPayload
	if err := decode(op, &p); err != nil {
		return outcome{}, err
	}
	log, err := h.svc.CheckIn(ctx, user, p.CommitmentID, dto.CheckInRequest{
		ID:   clientID(nil, op),
		Date: p.Date,
		Note: p.Note,
	})
	if stderrors.Is(err, commitments.ErrAlreadyCheckedIn) {
		if logs, lerr := h.svc.Logs(ctx, user.ID, p.CommitmentID, p.Date, p.Date); lerr == nil && len(logs) == 1 {
			return outcome{id: logs[0].ID, entity: &logs[0], conflict: true}, nil
		}
	}
	if err != nil {
		return outcome{}, err
	}
	return outcome{id: log.ID, entity: log}, nil
}

func (h *logHandler) update(ctx context.Context, user *models.User, op dto.SyncOperation) (outcome, error) {
	existing, err := h.svc.GetLog(ctx, user.ID, op.EntityID)
	if err != nil {
		return outcome{}, err
	}
	if stale(op, existing.UpdatedAt) {
		return outcome{id: existing.ID, entity: existing, conflict: true}, nil
	}
	var req logNoteUpdate
	if err := decode(op, &req); err != nil {
		return outcome{}, err
	}
	log, err := h.svc.UpdateLogNote(ctx, user.ID, op.EntityID, req.Note)
	if err != nil {
		return outcome{}, err
	}
	return outcome{id: log.ID, entity: log}, nil
}

func (h *logHandler) remove(ctx context.Context, user *models.User, op dto.SyncOperation) (outcome, error) {
	existing, err := h.svc.GetLog(ctx, user.ID, op.EntityID)
	if stderrors.Is(err, commitments.ErrLogNotFound) {
		return outcome{id: op.EntityID}, nil
	}
	if err != nil {
		return outcome{}, err
	}
	if stale(op, existing.UpdatedAt) {
		return outcome{id: existing.ID, entity: existing, conflict: true}, nil
	}
	return outcome{id: op.EntityID}, h.svc.DeleteLog(ctx, user.ID, op.EntityID)
}

type timelineHandler struct {
	svc *timeline.Service
}

func (h *timelineHandler) create(ctx context.Context, user *models.User, op dto.SyncOperation) (outcome, error) {
	var req dto.CreateTimelineEventRequest
	if err := decode(op, &req); err != nil {
		return outcome{}, err
	}
	req.ID = clientID(req.ID, op)
	e, err := h.svc.Create(ctx, user, req)
	if stderrors.Is(err, timeline.ErrDuplicateID) && req.ID != nil {
		if existing, gerr := h.svc.Get(ctx, user.ID, *req.ID); gerr == nil {
			return outcome{id: existing.ID, entity: existing, conflict: true}, nil
		}
	}
	if err != nil {
		return outcome{}, err
	}
	return outcome{id: e.ID, entity: e}, nil
}

func (h *timelineHandler) update(ctx context.Context, user *models.User, op dto.SyncOperation) (outcome, error) {
	existing, err := h.svc.Get(ctx, user.ID, op.EntityID)
	if err != nil {
		return outcome{}, err
	}
	if stale(op, existing.UpdatedAt) {
		return outcome{id: existing.ID, entity: existing, conflict: true}, nil
	}
	var req dto.UpdateTimelineEventRequest
	if err := decode(op, &req); err != nil {
		return outcome{}, err
	}
	e, err := h.svc.Update(ctx, user, op.EntityID, req)
	if err != nil {
		return outcome{}, err
	}
	return outcome{id: e.ID, entity: e}, nil
}

func (h *timelineHandler) remove(ctx context.Context, user *models.User, op dto.SyncOperation) (outcome, error) {
	existing, err := h.svc.Get(ctx, user.ID, op.EntityID)
	if stderrors.Is(err, timeline.ErrNotFound) {
		return outcome{id: op.EntityID}, nil
	}
	if err != nil {
		return outcome{}, err
	}
	if stale(op, existing.UpdatedAt) {
		return outcome{id: existing.ID, entity: existing, conflict: true}, nil
	}
	return outcome{id: op.EntityID}, h.svc.Delete(ctx, user.ID, op.EntityID)
}
