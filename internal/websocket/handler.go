package websocket

import (
	"context"
	stderrors "errors"
	"net/url"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"
	"github.com/zfogg/daybook/internal/auth"
	"github.com/zfogg/daybook/internal/errors"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/util"
	"go.uber.org/zap"
)

const maxDeviceIDLength = 64

// Handler handles WebSocket HTTP upgrade requests
type Handler struct {
	hub       *Hub
	validator auth.TokenValidator
	origins   []string
}

// NewHandler creates a new WebSocket handler. allowedOrigins are host patterns
// for the Origin check; empty or "*" accepts any origin.
func NewHandler(hub *Hub, validator auth.TokenValidator, allowedOrigins []string) *Handler {
	return &Handler{
		hub:       hub,
		validator: validator,
		origins:   originPatterns(allowedOrigins),
	}
}

// HandleWebSocket upgrades GET /ws. The access token comes from ?token= since
// browsers can't set headers on websocket requests; a Bearer header also works.
// ?device_id= names the device so it doesn't receive nudges for its own writes.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		header := c.GetHeader("Authorization")
		if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
			token = strings.TrimSpace(header[7:])
		}
	}
	if token == "" {
		util.RespondUnauthorized(c, "missing token")
		return
	}

	claims, err := h.validator.ValidateAccessToken(token)
	if err != nil {
		logger.Log.Debug("Websocket auth failed", logger.WithIP(c.ClientIP()), zap.Error(err))
		var apiErr *errors.APIError
		if stderrors.As(err, &apiErr) {
			util.RespondWithAPIError(c, apiErr)
			return
		}
		util.RespondUnauthorized(c, "invalid token")
		return
	}
	user, err := h.validator.GetUser(c.Request.Context(), claims.UserID)
	if err != nil {
		util.RespondUnauthorized(c, "user not found")
		return
	}

	deviceID := c.Query("device_id")
	if len(deviceID) > maxDeviceIDLength {
		deviceID = deviceID[:maxDeviceIDLength]
	}

	opts := &websocket.AcceptOptions{CompressionMode: websocket.CompressionContextTakeover}
	if h.origins == nil {
		opts.InsecureSkipVerify = true
	} else {
		opts.OriginPatterns = h.origins
	}
	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		logger.Log.Info("Websocket upgrade failed", logger.WithUserID(user.ID), zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn, user.ID, deviceID)
	client.RemoteAddr = c.ClientIP()
	client.UserAgent = c.GetHeader("User-Agent")
	h.hub.Register(client)

	_ = client.Send(NewMessage(MessageTypeSystem, SystemPayload{
		Event: "connected",
		Data: map[string]interface{}{
			"user_id":     user.ID,
			"device_id":   deviceID,
			"server_time": time.Now().UTC().Format(time.RFC3339),
		},
	}))

	go client.WritePump()
	client.ReadPump()
}

// HandleStats reports hub counters for admins
func (h *Handler) HandleStats(c *gin.Context) {
	util.RespondOK(c, gin.H{
		"websocket":    h.hub.GetMetrics(),
		"online_users": h.hub.OnlineUserCount(),
		"connections":  h.hub.Connections(),
	})
}

// Shutdown gracefully shuts down the hub
func (h *Handler) Shutdown(ctx context.Context) error {
	return h.hub.Shutdown(ctx)
}

// originPatterns turns configured CORS origins into host patterns
func originPatterns(origins []string) []string {
	var patterns []string
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			return nil
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			o = u.Host
		}
		patterns = append(patterns, o)
	}
	return patterns
}

