package dto

import "time"

// CreateTimelineEventRequest creates an event. EndsAt defaults to StartsAt.
type CreateTimelineEventRequest struct {
	ID             *string    `json:"id,omitempty" binding:"omitempty,uuid"`
	Title          string     `json:"title" binding:"required,min=1,max=200"`
	Description    string     `json:"description" binding:"max=5000"`
	Location       string     `json:"location" binding:"max=200"`
	StartsAt       time.Time  `json:"starts_at" binding:"required"`
	EndsAt         *time.Time `json:"ends_at,omitempty"`
	AllDay         bool       `json:"all_day"`
	Color          *string    `json:"color,omitempty" binding:"omitempty,hexcolor,len=7"`
	ProgressItemID *string    `json:"progress_item_id,omitempty" binding:"omitempty,uuid"`
}

// UpdateTimelineEventRequest is a partial update. progress_item_id: null unlinks.
type UpdateTimelineEventRequest struct {
	Title          *string        `json:"title,omitempty" binding:"omitempty,min=1,max=200"`
	Description    *string        `json:"description,omitempty" binding:"omitempty,max=5000"`
	Location       *string        `json:"location,omitempty" binding:"omitempty,max=200"`
	StartsAt       *time.Time     `json:"starts_at,omitempty"`
	EndsAt         *time.Time     `json:"ends_at,omitempty"`
	AllDay         *bool          `json:"all_day,omitempty"`
	Color          *string        `json:"color,omitempty" binding:"omitempty,hexcolor,len=7"`
	ProgressItemID OptionalString `json:"progress_item_id"`
}
