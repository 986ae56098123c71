package search

import (
	"time"

	"github.com/zfogg/daybook/internal/models"
)

// Document types
const (
	TypeProgressItem  = "progress_item"
	TypeTimelineEvent = "timeline_event"
)

// Document is what gets stored in the entries index
type Document struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location,omitempty"`
	Status      string    `json:"status,omitempty"`
	Date        string    `json:"date,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DocumentID is the index id; item and event ids live in separate tables
func (d Document) DocumentID() string {
	return documentID(d.Type, d.ID)
}

func documentID(docType, id string) string {
	return docType + ":" + id
}

// ProgressItemToDocument converts a progress item for indexing
func ProgressItemToDocument(item *models.ProgressItem) Document {
	doc := Document{
		ID:          item.ID,
		UserID:      item.UserID,
		Type:        TypeProgressItem,
		Title:       item.Title,
		Description: item.Description,
		Status:      string(item.Status),
		UpdatedAt:   item.UpdatedAt,
	}
	if item.DueDate != nil {
		doc.Date = *item.DueDate
	}
	return doc
}

// TimelineEventToDocument converts a timeline event for indexing
func TimelineEventToDocument(e *models.TimelineEvent) Document {
	return Document{
		ID:          e.ID,
		UserID:      e.UserID,
		Type:        TypeTimelineEvent,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		Date:        e.StartsAt.UTC().Format("2006-01-02"),
		UpdatedAt:   e.UpdatedAt,
	}
}
