package handlers

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/daybook/internal/dto"
	"github.com/zfogg/daybook/internal/history"
	"github.com/zfogg/daybook/internal/progress"
	"github.com/zfogg/daybook/internal/util"
)

const progressResource = "progress item"

// optionalBool reads a boolean query value. ok is false after an error response.
func optionalBool(c *gin.Context, name string) (*bool, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	v, valid := util.ParseBool(raw)
	if !valid {
		util.RespondValidationError(c, name, name+" must be true or false")
		return nil, false
	}
	return &v, true
}

// ListProgressItems lists the user's items with filters and paging
// GET /api/v1/progress-items
func (h *Handlers) ListProgressItems(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}
	important, ok := optionalBool(c, "important")
	if !ok {
		return
	}
	urgent, ok := optionalBool(c, "urgent")
	if !ok {
		return
	}

	limit, offset := util.ParsePagination(c)
	sort := c.Query("sort")
	desc := strings.EqualFold(c.Query("order"), "desc")
	if strings.HasPrefix(sort, "-") {
		sort, desc = sort[1:], true
	}

	items, total, err := h.progress.List(c.Request.Context(), userID, progress.ListOptions{
		Status:    c.Query("status"),
		Quadrant:  c.Query("quadrant"),
		Important: important,
		Urgent:    urgent,
		DueBefore: c.Query("due_before"),
		DueAfter:  c.Query("due_after"),
		Query:     strings.TrimSpace(c.Query("q")),
		Sort:      sort,
		Desc:      desc,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		util.RespondServiceError(c, err, progressResource)
		return
	}
	util.RespondWithMeta(c, items, util.NewPageMeta(limit, offset, len(items), total))
}

// CreateProgressItem adds an item
// POST /api/v1/progress-items
func (h *Handlers) CreateProgressItem(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req dto.CreateProgressItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBindError(c, err)
		return
	}

	item, err := h.progress.Create(mutationContext(c), userID, req)
	if err != nil {
		util.RespondServiceError(c, err, progressResource)
		return
	}
	util.RespondCreated(c, item)
}

// GetProgressItem returns one item
// GET /api/v1/progress-items/:id
func (h *Handlers) GetProgressItem(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	item, err := h.progress.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		util.RespondServiceError(c, err, progressResource)
		return
	}
	util.RespondOK(c, item)
}

// UpdateProgressItem applies a partial update
// PATCH /api/v1/progress-items/:id
func (h *Handlers) UpdateProgressItem(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req dto.UpdateProgressItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBindError(c, err)
		return
	}

	item, err := h.progress.Update(mutationContext(c), userID, c.Param("id"), req)
	if err != nil {
		util.RespondServiceError(c, err, progressResource)
		return
	}
	util.RespondOK(c, item)
}

// DeleteProgressItem soft-deletes an item
// DELETE /api/v1/progress-items/:id
func (h *Handlers) DeleteProgressItem(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := h.progress.Delete(mutationContext(c), userID, id); err != nil {
		util.RespondServiceError(c, err, progressResource)
		return
	}
	util.RespondOK(c, gin.H{"id": id, "deleted": true})
}

// CompleteProgressItem marks an item done
// POST /api/v1/progress-items/:id/complete
func (h *Handlers) CompleteProgressItem(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	item, err := h.progress.Complete(mutationContext(c), userID, c.Param("id"))
	if err != nil {
		util.RespondServiceError(c, err, progressResource)
		return
	}
	util.RespondOK(c, item)
}

// ReorderProgressItems assigns positions in the order given
// POST /api/v1/progress-items/reorder
func (h *Handlers) ReorderProgressItems(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	var req dto.ReorderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBindError(c, err)
		return
	}

	items, err := h.progress.Reorder(mutationContext(c), userID, req.IDs)
	if err != nil {
		util.RespondServiceError(c, err, progressResource)
		return
	}
	util.RespondOK(c, items)
}

// GetMatrix groups open items into the four quadrants
// GET /api/v1/progress-items/matrix
func (h *Handlers) GetMatrix(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	matrix, err := h.progress.Matrix(c.Request.Context(), userID)
	if err != nil {
		util.RespondServiceError(c, err, progressResource)
		return
	}
	util.RespondOK(c, matrix)
}

// GetProgressHistory buckets due and finished items over a date range
// GET /api/v1/progress-items/history?granularity=week&from=&to=
func (h *Handlers) GetProgressHistory(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	g, err := history.ParseGranularity(c.Query("granularity"))
	if err != nil {
		util.RespondServiceError(c, err, "history")
		return
	}
	from, to, err := history.ParseRange(c.Query("from"), c.Query("to"), g, util.TodayIn(user.Timezone, time.Now()))
	if err != nil {
		util.RespondServiceError(c, err, "history")
		return
	}
	loc, err := util.LoadLocation(user.Timezone)
	if err != nil {
		loc = time.UTC
	}

	buckets, err := h.progress.History(c.Request.Context(), user.ID, g, from, to, loc)
	if err != nil {
		util.RespondServiceError(c, err, "history")
		return
	}
	util.RespondWithMeta(c, buckets, gin.H{
		"granularity": g,
		"from":        util.FormatDate(from),
		"to":          util.FormatDate(to),
	})
}
