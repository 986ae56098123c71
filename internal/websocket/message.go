package websocket

import (
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FlexibleTime handles both Unix millisecond timestamps and RFC3339 strings
type FlexibleTime struct {
	time.Time
}

// UnmarshalJSON implements custom unmarshaling for timestamps
func (ft *FlexibleTime) UnmarshalJSON(b []byte) error {
	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		ft.Time = time.UnixMilli(ms)
		return nil
	}

	var str string
	if err := json.Unmarshal(b, &str); err != nil {
		return fmt.Errorf("timestamp must be Unix milliseconds (integer) or RFC3339 string")
	}

	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return err
	}
	ft.Time = t
	return nil
}

// MarshalJSON always writes RFC3339
func (ft FlexibleTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(ft.Time)
}

// Message types for WebSocket communication
const (
	MessageTypeSystem = "system"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
	MessageTypeError  = "error"

	// MessageTypeSync tells a device to pull GET /sync/changes
	MessageTypeSync = "sync"
)

// Message is the envelope for system, ping/pong and error frames
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`

	// ID lets a client match a reply to its request
	ID      string `json:"id,omitempty"`
	ReplyTo string `json:"reply_to,omitempty"`

	Timestamp FlexibleTime `json:"timestamp"`
}

// NewMessage creates a new message with the current timestamp
func NewMessage(msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewReply creates a reply message to an original message
func NewReply(original *Message, msgType string, payload interface{}) *Message {
	return &Message{
		Type:      msgType,
		ReplyTo:   original.ID,
		Payload:   payload,
		Timestamp: FlexibleTime{Time: time.Now().UTC()},
	}
}

// NewErrorMessage creates an error message
func NewErrorMessage(code string, message string) *Message {
	return NewMessage(MessageTypeError, ErrorPayload{
		Code:    code,
		Message: message,
	})
}

// ErrorPayload represents an error message payload
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PingPayload represents a ping message payload
type PingPayload struct {
	ClientTime int64 `json:"client_time"`
}

// PongPayload represents a pong message payload
type PongPayload struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
	Latency    int64 `json:"latency_ms"`
}

// SystemPayload represents system event payloads
type SystemPayload struct {
	Event   string                 `json:"event"`
	Message string                 `json:"message,omitempty"`
	Data    map[string]interface{} `json:"data,omitempty"`
}

// SyncNudge is pushed after a change so other devices pull the change feed.
// It is flat rather than wrapped in Message so clients can switch on type alone.
type SyncNudge struct {
	Type     string `json:"type"`
	Entity   string `json:"entity"`
	Action   string `json:"action"`
	EntityID string `json:"entity_id"`
}

// NewSyncNudge builds a sync frame
func NewSyncNudge(entity, action, entityID string) SyncNudge {
	return SyncNudge{Type: MessageTypeSync, Entity: entity, Action: action, EntityID: entityID}
}

// ParsePayload unmarshals the payload into a specific type
func (m *Message) ParsePayload(target interface{}) error {
	if m.Payload == nil {
		return nil
	}
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}
