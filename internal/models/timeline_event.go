package models

import (
	"time"

	"gorm.io/gorm"
)

// TimelineEvent is a scheduled block of time, optionally tied to a progress item
type TimelineEvent struct {
	ID             string    `gorm:"primaryKey;type:uuid" json:"id"`
	UserID         string    `gorm:"type:uuid;not null;index:idx_timeline_events_user_start,priority:1" json:"user_id"`
	Title          string    `gorm:"type:varchar(200);not null" json:"title"`
	Description    string    `gorm:"type:text" json:"description"`
	Location       string    `gorm:"type:varchar(200)" json:"location"`
	StartsAt       time.Time `gorm:"not null;index:idx_timeline_events_user_start,priority:2" json:"starts_at"`
	EndsAt         time.Time `gorm:"not null" json:"ends_at"`
	AllDay         bool      `gorm:"not null;default:false" json:"all_day"`
	Color          string    `gorm:"type:varchar(7)" json:"color"`
	ProgressItemID *string   `gorm:"type:uuid;index" json:"progress_item_id"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (e *TimelineEvent) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = generateUUID()
	}
	return nil
}
