// Package websocket pushes sync nudges to a user's connected devices so they
// pull the change feed without polling. Uses github.com/coder/websocket.
package websocket

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/zfogg/daybook/internal/events"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/metrics"
	"go.uber.org/zap"
)

// Hub keeps the connected clients per user and delivers frames to them
type Hub struct {
	clients map[string]map[*Client]struct{}

	unregister chan *Client
	unicast    chan *UnicastMessage

	mu sync.RWMutex

	metrics *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	rateLimitConfig RateLimitConfig
}

// Metrics tracks WebSocket statistics
type Metrics struct {
	TotalConnections   atomic.Int64
	ActiveConnections  atomic.Int64
	MessagesReceived   atomic.Int64
	MessagesSent       atomic.Int64
	Errors             atomic.Int64
	ConnectionsDropped atomic.Int64
}

// RateLimitConfig defines rate limiting parameters for client frames
type RateLimitConfig struct {
	MaxMessagesPerSecond int
	BurstSize            int
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxMessagesPerSecond: 5,
		BurstSize:            10,
	}
}

// UnicastMessage is a frame for every device of a user except ExcludeDevice
type UnicastMessage struct {
	UserID        string
	ExcludeDevice string
	Data          []byte
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:         make(map[string]map[*Client]struct{}),
		unregister:      make(chan *Client, 256),
		unicast:         make(chan *UnicastMessage, 256),
		metrics:         &Metrics{},
		ctx:             ctx,
		cancel:          cancel,
		rateLimitConfig: DefaultRateLimitConfig(),
	}
}

// Start runs the delivery loop in the background until Shutdown
func (h *Hub) Start() {
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.run()
	}()
}

func (h *Hub) run() {
	logger.Log.Info("Websocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.unicast:
			h.sendToUser(msg)
		}
	}
}

// Register adds a client immediately, so changes published right after the
// upgrade already reach it
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]struct{})
	}
	h.clients[client.UserID][client] = struct{}{}

	h.metrics.TotalConnections.Add(1)
	h.metrics.ActiveConnections.Add(1)
	metrics.App().WebsocketConnections.Inc()

	logger.Log.Debug("Websocket client connected",
		logger.WithUserID(client.UserID),
		zap.String("device_id", client.DeviceID),
		zap.Int64("active", h.metrics.ActiveConnections.Load()),
	)
}

// Unregister queues a client for removal
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[client.UserID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, client.UserID)
	}

	h.metrics.ActiveConnections.Add(-1)
	metrics.App().WebsocketConnections.Dec()
	client.Close()
}

func (h *Hub) sendToUser(msg *UnicastMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[msg.UserID] {
		if msg.ExcludeDevice != "" && client.DeviceID == msg.ExcludeDevice {
			continue
		}
		if err := client.enqueue(msg.Data); err != nil {
			// A device that can't keep up reconnects and pulls the feed
			h.metrics.ConnectionsDropped.Add(1)
			go h.Unregister(client)
			continue
		}
		h.metrics.MessagesSent.Add(1)
	}
}

func (h *Hub) sendToUserExcept(userID, excludeDevice string, v interface{}) {
	if !h.IsUserOnline(userID) {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		logger.Log.Error("Failed to marshal websocket frame", zap.Error(err))
		return
	}
	select {
	case h.unicast <- &UnicastMessage{UserID: userID, ExcludeDevice: excludeDevice, Data: data}:
	case <-h.ctx.Done():
	}
}

// OnChange implements events.Listener by nudging the user's other devices
func (h *Hub) OnChange(_ context.Context, change events.Change) {
	h.sendToUserExcept(change.UserID, change.Origin,
		NewSyncNudge(change.Entity, change.Action, change.EntityID))
}

// IsUserOnline checks if a user has any active connections
func (h *Hub) IsUserOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// GetUserConnectionCount returns the number of connections for a user
func (h *Hub) GetUserConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Connections describes every open connection
func (h *Hub) Connections() []ClientInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()
	infos := make([]ClientInfo, 0, len(h.clients))
	for _, clients := range h.clients {
		for c := range clients {
			infos = append(infos, c.GetInfo())
		}
	}
	return infos
}

// OnlineUserCount returns how many users have at least one device connected
func (h *Hub) OnlineUserCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// GetMetrics returns current WebSocket metrics
func (h *Hub) GetMetrics() MetricsSnapshot {
	return MetricsSnapshot{
		TotalConnections:   h.metrics.TotalConnections.Load(),
		ActiveConnections:  h.metrics.ActiveConnections.Load(),
		MessagesReceived:   h.metrics.MessagesReceived.Load(),
		MessagesSent:       h.metrics.MessagesSent.Load(),
		Errors:             h.metrics.Errors.Load(),
		ConnectionsDropped: h.metrics.ConnectionsDropped.Load(),
	}
}

// MetricsSnapshot is a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	TotalConnections   int64 `json:"total_connections"`
	ActiveConnections  int64 `json:"active_connections"`
	MessagesReceived   int64 `json:"messages_received"`
	MessagesSent       int64 `json:"messages_sent"`
	Errors             int64 `json:"errors"`
	ConnectionsDropped int64 `json:"connections_dropped"`
}

// String implements Stringer for MetricsSnapshot
func (m MetricsSnapshot) String() string {
	return fmt.Sprintf(
		"connections=%d/%d messages=rx:%d/tx:%d errors=%d dropped=%d",
		m.ActiveConnections, m.TotalConnections,
		m.MessagesReceived, m.MessagesSent,
		m.Errors, m.ConnectionsDropped,
	)
}

// Shutdown stops the hub and closes every connection
func (h *Hub) Shutdown(ctx context.Context) error {
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]map[*Client]struct{})
	h.mu.Unlock()

	n := 0
	for _, set := range clients {
		for client := range set {
			client.CloseWith(websocket.StatusGoingAway, "server shutdown")
			n++
		}
	}
	h.metrics.ActiveConnections.Store(0)
	metrics.App().WebsocketConnections.Set(0)

	logger.Log.Info("Websocket hub stopped",
		zap.Int("closed_connections", n),
	)
}

// GetRateLimitConfig returns the current rate limit configuration
func (h *Hub) GetRateLimitConfig() RateLimitConfig {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rateLimitConfig
}
