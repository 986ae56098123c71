package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/zfogg/daybook/internal/util"
)

// GetDashboard returns the overview of one day, today in the user's timezone by default
// GET /api/v1/dashboard?date=YYYY-MM-DD
func (h *Handlers) GetDashboard(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	d, err := h.dashboard.Get(c.Request.Context(), user, c.Query("date"))
	if err != nil {
		util.RespondServiceError(c, err, "dashboard")
		return
	}
	util.RespondOK(c, d)
}
