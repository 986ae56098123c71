package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zfogg/daybook/internal/auth"
	"github.com/zfogg/daybook/internal/middleware"
)

// Response cache lifetimes for the read-heavy aggregate routes
const (
	historyCacheTTL = 5 * time.Minute
	streakCacheTTL  = time.Minute
)

// RouteOptions carries the middleware the API routes are built with
type RouteOptions struct {
	Validator auth.TokenValidator
	// ResponseCache may be nil to disable caching
	ResponseCache *middleware.ResponseCache
	// AuthLimiter and SyncLimiter are optional
	AuthLimiter gin.HandlerFunc
	SyncLimiter gin.HandlerFunc
}

func noop(c *gin.Context) { c.Next() }

// RegisterRoutes mounts the whole API under api (normally /api/v1)
func RegisterRoutes(api *gin.RouterGroup, h *Handlers, ah *AuthHandlers, opts RouteOptions) {
	requireAuth := middleware.AuthMiddleware(opts.Validator)
	authLimit := opts.AuthLimiter
	if authLimit == nil {
		authLimit = noop
	}
	syncLimit := opts.SyncLimiter
	if syncLimit == nil {
		syncLimit = noop
	}
	cached := func(ttl time.Duration) gin.HandlerFunc {
		if opts.ResponseCache == nil {
			return noop
		}
		return opts.ResponseCache.Middleware(ttl)
	}

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", authLimit, ah.Register)
		authGroup.POST("/login", authLimit, ah.Login)
		authGroup.POST("/refresh", authLimit, ah.Refresh)
		authGroup.POST("/logout", ah.Logout)
		authGroup.POST("/password-reset", authLimit, ah.RequestPasswordReset)
		authGroup.POST("/password-reset/confirm", authLimit, ah.ConfirmPasswordReset)
		authGroup.GET("/google", ah.GoogleLogin)
		authGroup.GET("/google/callback", authLimit, ah.GoogleCallback)

		authGroup.POST("/logout-all", requireAuth, ah.LogoutAll)
		authGroup.GET("/me", requireAuth, ah.Me)
		authGroup.PATCH("/me", requireAuth, ah.UpdateMe)
		authGroup.POST("/password", requireAuth, ah.ChangePassword)
		authGroup.POST("/2fa/setup", requireAuth, ah.SetupTwoFactor)
		authGroup.POST("/2fa/enable", requireAuth, ah.EnableTwoFactor)
		authGroup.POST("/2fa/disable", requireAuth, ah.DisableTwoFactor)
	}

	items := api.Group("/progress-items", requireAuth)
	{
		items.GET("", h.ListProgressItems)
		items.POST("", h.CreateProgressItem)
		items.GET("/matrix", h.GetMatrix)
		items.GET("/history", cached(historyCacheTTL), h.GetProgressHistory)
		items.POST("/reorder", h.ReorderProgressItems)
		items.GET("/:id", h.GetProgressItem)
		items.PATCH("/:id", h.UpdateProgressItem)
		items.DELETE("/:id", h.DeleteProgressItem)
		items.POST("/:id/complete", h.CompleteProgressItem)
	}

	commitments := api.Group("/commitments", requireAuth)
	{
		commitments.GET("", h.ListCommitments)
		commitments.POST("", h.CreateCommitment)
		commitments.GET("/:id", h.GetCommitment)
		commitments.PATCH("/:id", h.UpdateCommitment)
		commitments.DELETE("/:id", h.DeleteCommitment)
		commitments.GET("/:id/logs", h.ListCheckIns)
		commitments.POST("/:id/logs", h.CheckIn)
		commitments.DELETE("/:id/logs/:date", h.UndoCheckIn)
		commitments.GET("/:id/history", cached(historyCacheTTL), h.GetCommitmentHistory)
		commitments.GET("/:id/streak", cached(streakCacheTTL), h.GetStreak)
	}

	tl := api.Group("/timeline", requireAuth)
	{
		tl.GET("", h.ListTimeline)
		tl.POST("", h.CreateTimelineEvent)
		tl.GET("/:id", h.GetTimelineEvent)
		tl.PATCH("/:id", h.UpdateTimelineEvent)
		tl.DELETE("/:id", h.DeleteTimelineEvent)
	}

	api.GET("/dashboard", requireAuth, h.GetDashboard)
	api.POST("/sync", requireAuth, syncLimit, h.ApplySync)
	api.GET("/sync/changes", requireAuth, h.GetChanges)
	api.GET("/search", requireAuth, h.Search)
	api.POST("/export", requireAuth, h.Export)

	// the websocket handler authenticates from ?token= itself
	api.GET("/ws", h.HandleWebSocket)

	admin := api.Group("/admin", requireAuth, middleware.RequireAdmin())
	{
		admin.GET("/stats", h.GetAdminStats)
		admin.GET("/realtime", h.GetRealtimeStats)
	}
}
