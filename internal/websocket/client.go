package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/zfogg/daybook/internal/logger"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Clients only send pings, so frames stay small
	maxMessageSize = 16 * 1024

	sendBufferSize = 64
)

// Client is one connected device of a user
type Client struct {
	conn *websocket.Conn
	hub  *Hub

	UserID string
	// DeviceID is the client's self-reported device; nudges for changes the
	// device made itself are not echoed back to it
	DeviceID string

	// Buffered channel of outbound frames
	send chan []byte

	ConnectedAt time.Time
	LastPingAt  time.Time
	RemoteAddr  string
	UserAgent   string

	rateLimiter *RateLimiter

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	tokens    float64
	maxTokens float64
	refill    float64
	lastTime  time.Time
	mu        sync.Mutex
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(maxPerSecond int, burst int) *RateLimiter {
	return &RateLimiter{
		tokens:    float64(burst),
		maxTokens: float64(burst),
		refill:    float64(maxPerSecond),
		lastTime:  time.Now(),
	}
}

// Allow checks if an action is allowed and consumes a token
func (r *RateLimiter) Allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(r.lastTime).Seconds()
	r.lastTime = now

	r.tokens += elapsed * r.refill
	if r.tokens > r.maxTokens {
		r.tokens = r.maxTokens
	}

	if r.tokens >= 1 {
		r.tokens--
		return true
	}
	return false
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, userID, deviceID string) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	config := hub.GetRateLimitConfig()

	return &Client{
		hub:         hub,
		conn:        conn,
		UserID:      userID,
		DeviceID:    deviceID,
		send:        make(chan []byte, sendBufferSize),
		ConnectedAt: time.Now(),
		rateLimiter: NewRateLimiter(config.MaxMessagesPerSecond, config.BurstSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// ReadPump reads client frames until the connection ends
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)

	for {
		readCtx, readCancel := context.WithTimeout(c.ctx, pongWait)
		_, data, err := c.conn.Read(readCtx)
		readCancel()

		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Log.Debug("Websocket client disconnected", logger.WithUserID(c.UserID))
			} else if c.ctx.Err() == nil {
				logger.Log.Info("Websocket read ended",
					logger.WithUserID(c.UserID),
					zap.Error(err),
				)
				c.hub.metrics.Errors.Add(1)
			}
			return
		}

		if !c.rateLimiter.Allow() {
			c.SendError("rate_limited", "Too many messages, please slow down")
			c.hub.metrics.Errors.Add(1)
			continue
		}
		c.hub.metrics.MessagesReceived.Add(1)

		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			c.SendError("invalid_json", "Failed to parse message")
			continue
		}
		c.handleMessage(&message)
	}
}

// WritePump writes queued frames and keeps the connection alive with pings
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return

		case message := <-c.send:
			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Write(ctx, websocket.MessageText, message)
			cancel()
			if err != nil {
				if c.ctx.Err() == nil {
					logger.Log.Info("Websocket write failed",
						logger.WithUserID(c.UserID),
						zap.Error(err),
					)
					c.hub.metrics.Errors.Add(1)
				}
				return
			}

		case <-ticker.C:
			c.mu.Lock()
			c.LastPingAt = time.Now()
			c.mu.Unlock()

			ctx, cancel := context.WithTimeout(c.ctx, writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				logger.Log.Debug("Websocket ping failed", logger.WithUserID(c.UserID), zap.Error(err))
				return
			}
		}
	}
}

func (c *Client) handleMessage(message *Message) {
	switch message.Type {
	case MessageTypePing, "heartbeat":
		c.handlePing(message)
	default:
		c.SendError("unknown_type", fmt.Sprintf("Unknown message type: %s", message.Type))
	}
}

func (c *Client) handlePing(message *Message) {
	var ping PingPayload
	if err := message.ParsePayload(&ping); err != nil {
		ping.ClientTime = 0
	}

	serverTime := time.Now().UnixMilli()
	pong := NewReply(message, MessageTypePong, PongPayload{
		ClientTime: ping.ClientTime,
		ServerTime: serverTime,
		Latency:    serverTime - ping.ClientTime,
	})
	_ = c.Send(pong)
}

// Send queues a message for this client
func (c *Client) Send(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *Client) enqueue(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return fmt.Errorf("client connection closed")
	}

	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("send buffer full")
	}
}

// SendError sends an error message to the client
func (c *Client) SendError(code, message string) {
	_ = c.Send(NewErrorMessage(code, message))
}

// Close ends the connection; safe to call more than once
func (c *Client) Close() {
	c.CloseWith(websocket.StatusNormalClosure, "closing")
}

// CloseWith ends the connection with a specific close status
func (c *Client) CloseWith(status websocket.StatusCode, reason string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	if c.conn != nil {
		c.conn.Close(status, reason)
	}
}

// IsClosed returns whether the client connection is closed
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// GetInfo returns client information
func (c *Client) GetInfo() ClientInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ClientInfo{
		UserID:      c.UserID,
		DeviceID:    c.DeviceID,
		ConnectedAt: c.ConnectedAt,
		LastPingAt:  c.LastPingAt,
		RemoteAddr:  c.RemoteAddr,
		UserAgent:   c.UserAgent,
	}
}

// ClientInfo represents public client information
type ClientInfo struct {
	UserID      string    `json:"user_id"`
	DeviceID    string    `json:"device_id,omitempty"`
	ConnectedAt time.Time `json:"connected_at"`
	LastPingAt  time.Time `json:"last_ping_at"`
	RemoteAddr  string    `json:"remote_addr"`
	UserAgent   string    `json:"user_agent"`
}
