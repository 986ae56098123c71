package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/daybook/internal/dto"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/util"
	"go.uber.org/zap"
)

// ApplySync replays a batch of queued client mutations
// POST /api/v1/sync
func (h *Handlers) ApplySync(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req dto.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBindError(c, err)
		return
	}

	resp, err := h.sync.Apply(mutationContext(c), user, req.Operations)
	if err != nil {
		util.RespondServiceError(c, err, "sync batch")
		return
	}

	logger.Log.Debug("Sync batch applied",
		logger.WithUserID(user.ID),
		zap.Int("operations", len(req.Operations)),
		zap.String("device_id", c.GetHeader(DeviceIDHeader)),
	)
	util.RespondOK(c, resp)
}

// GetChanges returns everything changed after ?since=, tombstones included.
// Without since the whole data set is returned.
// GET /api/v1/sync/changes?since=RFC3339
func (h *Handlers) GetChanges(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var since time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			util.RespondValidationError(c, "since", "since must be an RFC3339 timestamp")
			return
		}
		since = t
	}

	changes, err := h.sync.Changes(c.Request.Context(), userID, since)
	if err != nil {
		util.RespondServiceError(c, err, "changes")
		return
	}
	util.RespondOK(c, changes)
}
