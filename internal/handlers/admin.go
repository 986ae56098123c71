package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/daybook/internal/repository"
	"github.com/zfogg/daybook/internal/util"
)

// AdminStats is the row count of every user-facing table
type AdminStats struct {
	Users          int64 `json:"users"`
	Admins         int64 `json:"admins"`
	ProgressItems  int64 `json:"progress_items"`
	Commitments    int64 `json:"commitments"`
	CommitmentLogs int64 `json:"commitment_logs"`
	TimelineEvents int64 `json:"timeline_events"`
}

// GetAdminStats reports table counts. Soft-deleted rows are excluded.
// GET /api/v1/admin/stats
func (h *Handlers) GetAdminStats(c *gin.Context) {
	ctx := c.Request.Context()
	users := repository.NewUserRepository(h.db)
	commitments := repository.NewCommitmentRepository(h.db)

	var stats AdminStats
	counts := []struct {
		count func(context.Context) (int64, error)
		dst   *int64
	}{
		{users.GetTotalUserCount, &stats.Users},
		{users.CountAdmins, &stats.Admins},
		{repository.NewProgressRepository(h.db).Count, &stats.ProgressItems},
		{commitments.Count, &stats.Commitments},
		{commitments.CountLogs, &stats.CommitmentLogs},
		{repository.NewTimelineRepository(h.db).Count, &stats.TimelineEvents},
	}
	for _, q := range counts {
		n, err := q.count(ctx)
		if err != nil {
			util.RespondServiceError(c, err, "stats")
			return
		}
		*q.dst = n
	}
	util.RespondOK(c, stats)
}

// GetRealtimeStats reports websocket hub counters
// GET /api/v1/admin/realtime
func (h *Handlers) GetRealtimeStats(c *gin.Context) {
	if h.wsHandler == nil {
		util.RespondOK(c, gin.H{"enabled": false})
		return
	}
	h.wsHandler.HandleStats(c)
}

// HandleWebSocket upgrades to the realtime channel
// GET /api/v1/ws?token=
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	if h.wsHandler == nil {
		util.RespondNotFound(c, "realtime endpoint")
		return
	}
	h.wsHandler.HandleWebSocket(c)
}
