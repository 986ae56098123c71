package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/zfogg/daybook/internal/util"
)

// Search finds the user's progress items and timeline events
// GET /api/v1/search?q=&limit=
func (h *Handlers) Search(c *gin.Context) {
	userID, ok := util.GetUserIDFromContext(c)
	if !ok {
		return
	}

	q := c.Query("q")
	results, err := h.search.Search(c.Request.Context(), userID, q, util.ParseInt(c.Query("limit"), 0))
	if err != nil {
		util.RespondServiceError(c, err, "search")
		return
	}
	util.RespondWithMeta(c, results, gin.H{"query": q, "count": len(results)})
}
