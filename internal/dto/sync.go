package dto

import (
	"encoding/json"
	"time"
)

// MaxSyncOperations caps one outbox replay batch
const MaxSyncOperations = 100

// SyncRequest is a batch of queued client mutations, applied in order
type SyncRequest struct {
	Operations []SyncOperation `json:"operations" binding:"required,min=1,max=100,dive"`
}

// SyncOperation is one outbox entry
type SyncOperation struct {
	OpID            string          `json:"op_id" binding:"required,uuid"`
	Entity          string          `json:"entity" binding:"required,oneof=progress_item commitment commitment_log timeline_event"`
	Action          string          `json:"action" binding:"required,oneof=create update delete"`
	EntityID        string          `json:"entity_id" binding:"omitempty,uuid"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	ClientUpdatedAt *time.Time      `json:"client_updated_at,omitempty"`
}

// SyncResult reports what happened to one operation
type SyncResult struct {
	OpID     string      `json:"op_id"`
	Status   string      `json:"status"`
	EntityID string      `json:"entity_id,omitempty"`
	Error    *SyncError  `json:"error,omitempty"`
	Entity   interface{} `json:"entity,omitempty"`
}

// SyncError mirrors the envelope error for a rejected operation
type SyncError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// SyncResponse is the body of POST /sync
type SyncResponse struct {
	Results    []SyncResult `json:"results"`
	ServerTime time.Time    `json:"server_time"`
}

// Change is one row in the change feed. Deleted rows carry only identifiers.
type Change struct {
	Entity    string      `json:"entity"`
	ID        string      `json:"id"`
	Deleted   bool        `json:"deleted"`
	UpdatedAt time.Time   `json:"updated_at"`
	Data      interface{} `json:"data,omitempty"`
}

// ChangesResponse is the body of GET /sync/changes
type ChangesResponse struct {
	Changes    []Change  `json:"changes"`
	ServerTime time.Time `json:"server_time"`
}
