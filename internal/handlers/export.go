package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/util"
	"go.uber.org/zap"
)

// Export snapshots all of the user's data, as a download link when S3 is configured
// POST /api/v1/export
func (h *Handlers) Export(c *gin.Context) {
	user, ok := util.GetUserFromContext(c)
	if !ok {
		return
	}

	res, err := h.export.Export(c.Request.Context(), user)
	if err != nil {
		util.RespondServiceError(c, err, "export")
		return
	}

	logger.Log.Info("Export created",
		logger.WithUserID(user.ID),
		zap.String("destination", res.Destination),
		zap.Int64("size", res.Size),
	)
	util.RespondOK(c, res)
}
