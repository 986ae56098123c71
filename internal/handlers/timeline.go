package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/daybook/internal/dto"
	"github.com/zfogg/daybook/internal/util"
)

const timelineResource = "timeline event"

// parseInstant accepts RFC3339 or a YYYY-MM-DD date, which means local midnight in loc
func parseInstant(s string, loc *time.Location) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	start, _, err := util.LocalDayBounds(s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return start, true
}

// ListTimeline returns events of one day (?date=) or overlapping [from, to).
// With no parameters it returns today in the user's timezone.
// GET /api/v1/timeline
func (h *Handlers) ListTimeline(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}
	fromStr, toStr := c.Query("from"), c.Query("to")

	if fromStr == "" && toStr == "" {
		date := c.Query("date")
		if date == "" {
			date = util.TodayIn(user.Timezone, time.Now())
		}
		evs, err := h.timeline.Day(c.Request.Context(), user.ID, date, user.Timezone)
		if err != nil {
			util.RespondServiceError(c, err, timelineResource)
			return
		}
		util.RespondOK(c, evs)
		return
	}

	loc, err := util.LoadLocation(user.Timezone)
	if err != nil {
		loc = time.UTC
	}
	from, ok := parseInstant(fromStr, loc)
	if !ok {
		util.RespondValidationError(c, "from", "from must be RFC3339 or YYYY-MM-DD")
		return
	}
	to, ok := parseInstant(toStr, loc)
	if !ok {
		util.RespondValidationError(c, "to", "to must be RFC3339 or YYYY-MM-DD")
		return
	}

	evs, err := h.timeline.Range(c.Request.Context(), user.ID, from, to)
	if err != nil {
		util.RespondServiceError(c, err, timelineResource)
		return
	}
	util.RespondOK(c, evs)
}

// CreateTimelineEvent adds an event
// POST /api/v1/timeline
func (h *Handlers) CreateTimelineEvent(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req dto.CreateTimelineEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBindError(c, err)
		return
	}

	e, err := h.timeline.Create(mutationContext(c), user, req)
	if err != nil {
		util.RespondServiceError(c, err, timelineResource)
		return
	}
	util.RespondCreated(c, e)
}

// GetTimelineEvent returns one event
// GET /api/v1/timeline/:id
func (h *Handlers) GetTimelineEvent(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	e, err := h.timeline.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		util.RespondServiceError(c, err, timelineResource)
		return
	}
	util.RespondOK(c, e)
}

// UpdateTimelineEvent applies a partial update
// PATCH /api/v1/timeline/:id
func (h *Handlers) UpdateTimelineEvent(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	var req dto.UpdateTimelineEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		util.RespondBindError(c, err)
		return
	}

	e, err := h.timeline.Update(mutationContext(c), user, c.Param("id"), req)
	if err != nil {
		util.RespondServiceError(c, err, timelineResource)
		return
	}
	util.RespondOK(c, e)
}

// DeleteTimelineEvent soft-deletes an event
// DELETE /api/v1/timeline/:id
func (h *Handlers) DeleteTimelineEvent(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	id := c.Param("id")
	if err := h.timeline.Delete(mutationContext(c), userID, id); err != nil {
		util.RespondServiceError(c, err, timelineResource)
		return
	}
	util.RespondOK(c, gin.H{"id": id, "deleted": true})
}
