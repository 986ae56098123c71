package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/daybook/internal/commitments"
	"github.com/zfogg/daybook/internal/dashboard"
	"github.com/zfogg/daybook/internal/events"
	"github.com/zfogg/daybook/internal/export"
	"github.com/zfogg/daybook/internal/offlinesync"
	"github.com/zfogg/daybook/internal/progress"
	"github.com/zfogg/daybook/internal/search"
	"github.com/zfogg/daybook/internal/timeline"
	"github.com/zfogg/daybook/internal/websocket"
	"gorm.io/gorm"
)

// DeviceIDHeader names the sending device so realtime nudges skip it
const DeviceIDHeader = "X-Device-ID"

const maxDeviceIDLength = 64

// Services are the domain services behind the API
type Services struct {
	Progress    *progress.Service
	Commitments *commitments.Service
	Timeline    *timeline.Service
	Dashboard   *dashboard.Service
	Sync        *offlinesync.Service
	Search      *search.Service
	Export      *export.Service
}

// NewServices builds every domain service on one database and change publisher.
// store-backed and external pieces (dashboard cache, search backend, S3) are passed in.
func NewServices(db *gorm.DB, publisher events.Publisher, dash *dashboard.Service, searchSvc *search.Service, exportSvc *export.Service) Services {
	return Services{
		Progress:    progress.NewService(db, publisher),
		Commitments: commitments.NewService(db, publisher),
		Timeline:    timeline.NewService(db, publisher),
		Dashboard:   dash,
		Sync:        offlinesync.NewService(db, publisher),
		Search:      searchSvc,
		Export:      exportSvc,
	}
}

// Handlers contains the HTTP handlers for the signed-in API
type Handlers struct {
	db          *gorm.DB
	progress    *progress.Service
	commitments *commitments.Service
	timeline    *timeline.Service
	dashboard   *dashboard.Service
	sync        *offlinesync.Service
	search      *search.Service
	export      *export.Service
	wsHandler   *websocket.Handler
}

// NewHandlers creates a new handlers instance
func NewHandlers(db *gorm.DB, svc Services) *Handlers {
	return &Handlers{
		db:          db,
		progress:    svc.Progress,
		commitments: svc.Commitments,
		timeline:    svc.Timeline,
		dashboard:   svc.Dashboard,
		sync:        svc.Sync,
		search:      svc.Search,
		export:      svc.Export,
	}
}

// SetWebSocketHandler enables the realtime endpoints
func (h *Handlers) SetWebSocketHandler(ws *websocket.Handler) {
	h.wsHandler = ws
}

// mutationContext carries the calling device into published changes
func mutationContext(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	device := c.GetHeader(DeviceIDHeader)
	if device == "" || len(device) > maxDeviceIDLength {
		return ctx
	}
	return events.WithOrigin(ctx, device)
}
