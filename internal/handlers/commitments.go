package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/zfogg/daybook/internal/dto"
	"github.com/zfogg/daybook/internal/history"
	"github.com/zfogg/daybook/internal/util"
)

const (
	commitmentResource = "commitment"
	checkInResource    = "check-in"
)

// ListCommitments lists habits, optionally filtered by archived
// GET /api/v1/commitments?archived=false
func (h *Handlers) ListCommitments(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	archived, ok := optionalBool(c, "archived")
	if !ok {
		return
	}

	list, err := h.commitments.List(c.Request.Context(), userID, archived)
	if err != nil {
		util.RespondServiceError(c, err, commitmentResource)
		return
	}
	util.RespondOK(c, list)
}

// CreateCommitment adds a habit
// POST /api/v1/commitments
func (h *Handlers) CreateCommitment(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req dto.CreateCommitmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBindError(c, err)
		return
	}

	commitment, err := h.commitments.Create(mutationContext(c), user, req)
	if err != nil {
		util.RespondServiceError(c, err, commitmentResource)
		return
	}
	util.RespondCreated(c, commitment)
}

// GetCommitment returns one habit
// GET /api/v1/commitments/:id
func (h *Handlers) GetCommitment(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	commitment, err := h.commitments.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		util.RespondServiceError(c, err, commitmentResource)
		return
	}
	util.RespondOK(c, commitment)
}

// UpdateCommitment applies a partial update
// PATCH /api/v1/commitments/:id
func (h *Handlers) UpdateCommitment(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req dto.UpdateCommitmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBindError(c, err)
		return
	}

	commitment, err := h.commitments.Update(mutationContext(c), userID, c.Param("id"), req)
	if err != nil {
		util.RespondServiceError(c, err, commitmentResource)
		return
	}
	util.RespondOK(c, commitment)
}

// DeleteCommitment removes a habit and its check-ins
// DELETE /api/v1/commitments/:id
func (h *Handlers) DeleteCommitment(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := h.commitments.Delete(mutationContext(c), userID, id); err != nil {
		util.RespondServiceError(c, err, commitmentResource)
		return
	}
	util.RespondOK(c, gin.H{"id": id, "deleted": true})
}

// ListCheckIns lists check-ins between optional from/to dates
// GET /api/v1/commitments/:id/logs
func (h *Handlers) ListCheckIns(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	logs, err := h.commitments.Logs(c.Request.Context(), userID, c.Param("id"), c.Query("from"), c.Query("to"))
	if err != nil {
		util.RespondServiceError(c, err, commitmentResource)
		return
	}
	util.RespondOK(c, logs)
}

// CheckIn records a kept day
// POST /api/v1/commitments/:id/logs
func (h *Handlers) CheckIn(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req dto.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBindError(c, err)
		return
	}

	log, err := h.commitments.CheckIn(mutationContext(c), user, c.Param("id"), req)
	if err != nil {
		util.RespondServiceError(c, err, checkInResource)
		return
	}
	util.RespondCreated(c, log)
}

// UndoCheckIn removes the check-in for a date
// DELETE /api/v1/commitments/:id/logs/:date
func (h *Handlers) UndoCheckIn(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	date := c.Param("date")
	if !util.IsDate(date) {
		util.RespondValidationError(c, "date", "date must be YYYY-MM-DD")
		return
	}
	if err := h.commitments.UndoCheckIn(mutationContext(c), userID, c.Param("id"), date); err != nil {
		util.RespondServiceError(c, err, checkInResource)
		return
	}
	util.RespondOK(c, gin.H{"commitment_id": c.Param("id"), "date": date, "deleted": true})
}

// GetCommitmentHistory buckets scheduled and kept days
// GET /api/v1/commitments/:id/history?granularity=week&from=&to=
func (h *Handlers) GetCommitmentHistory(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	g, err := history.ParseGranularity(c.Query("granularity"))
	if err != nil {
		util.RespondServiceError(c, err, "history")
		return
	}
	from, to, err := history.ParseRange(c.Query("from"), c.Query("to"), g, h.commitments.Today(user))
	if err != nil {
		util.RespondServiceError(c, err, "history")
		return
	}

	buckets, err := h.commitments.History(c.Request.Context(), user, c.Param("id"), g, from, to)
	if err != nil {
		util.RespondServiceError(c, err, commitmentResource)
		return
	}
	util.RespondWithMeta(c, buckets, gin.H{
		"granularity": g,
		"from":        util.FormatDate(from),
		"to":          util.FormatDate(to),
	})
}

// GetStreak returns the current and longest streak
// GET /api/v1/commitments/:id/streak
func (h *Handlers) GetStreak(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	streak, err := h.commitments.Streak(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		util.RespondServiceError(c, err, commitmentResource)
		return
	}
	util.RespondOK(c, streak)
}
