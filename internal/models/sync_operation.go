package models

import (
	"time"

	"gorm.io/gorm"
)

// Sync entity kinds accepted by the outbox replay endpoint
const (
	EntityProgressItem  = "progress_item"
	EntityCommitment    = "commitment"
	EntityCommitmentLog = "commitment_log"
	EntityTimelineEvent = "timeline_event"
)

// Sync actions
const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

// Sync operation outcomes
const (
	SyncApplied   = "applied"
	SyncDuplicate = "duplicate"
	SyncConflict  = "conflict"
	SyncRejected  = "rejected"
)

// SyncOperation remembers a replayed client outbox operation so retries are idempotent.
// Result holds the JSON result returned the first time the op was seen.
type SyncOperation struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	UserID   string `gorm:"type:uuid;not null;uniqueIndex:idx_sync_operations_user_op,priority:1" json:"user_id"`
	OpID     string `gorm:"type:varchar(64);not null;uniqueIndex:idx_sync_operations_user_op,priority:2" json:"op_id"`
	Entity   string `gorm:"type:varchar(32);not null" json:"entity"`
	Action   string `gorm:"type:varchar(16);not null" json:"action"`
	EntityID string `gorm:"type:varchar(64)" json:"entity_id"`
	Status   string `gorm:"type:varchar(16);not null" json:"status"`
	Result   string `gorm:"type:text" json:"-"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (o *SyncOperation) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = generateUUID()
	}
	return nil
}

// AllModels lists every table managed by migrations
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&RefreshToken{},
		&PasswordReset{},
		&ProgressItem{},
		&Commitment{},
		&CommitmentLog{},
		&TimelineEvent{},
		&SyncOperation{},
	}
}
