package models

import (
	"time"

	"gorm.io/gorm"
)

// ItemStatus is the workflow state of a progress item
type ItemStatus string

const (
	StatusTodo       ItemStatus = "todo"
	StatusInProgress ItemStatus = "in_progress"
	StatusDone       ItemStatus = "done"
)

// Valid reports whether s is a known status
func (s ItemStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Quadrant is an Eisenhower matrix cell, derived from the importance and urgency flags
type Quadrant string

const (
	QuadrantDo        Quadrant = "do"        // important and urgent
	QuadrantSchedule  Quadrant = "schedule"  // important, not urgent
	QuadrantDelegate  Quadrant = "delegate"  // urgent, not important
	QuadrantEliminate Quadrant = "eliminate" // neither
)

// Quadrants lists the matrix cells in display order
var Quadrants = []Quadrant{QuadrantDo, QuadrantSchedule, QuadrantDelegate, QuadrantEliminate}

// QuadrantFor maps the two flags to their cell
func QuadrantFor(important, urgent bool) Quadrant {
	switch {
	case important && urgent:
		return QuadrantDo
	case important:
		return QuadrantSchedule
	case urgent:
		return QuadrantDelegate
	default:
		return QuadrantEliminate
	}
}

// ParseQuadrant validates a quadrant name
func ParseQuadrant(s string) (Quadrant, bool) {
	for _, q := range Quadrants {
		if string(q) == s {
			return q, true
		}
	}
	return "", false
}

// Flags returns the importance and urgency flags that place an item in q
func (q Quadrant) Flags() (important, urgent bool) {
	switch q {
	case QuadrantDo:
		return true, true
	case QuadrantSchedule:
		return true, false
	case QuadrantDelegate:
		return false, true
	}
	return false, false
}

// ProgressItem is a task on the Eisenhower matrix
type ProgressItem struct {
	ID          string     `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string     `gorm:"type:uuid;not null;index:idx_progress_items_user_position,priority:1" json:"user_id"`
	Title       string     `gorm:"type:varchar(200);not null" json:"title"`
	Description string     `gorm:"type:text" json:"description"`
	Important   bool       `gorm:"not null;default:false" json:"important"`
	Urgent      bool       `gorm:"not null;default:false" json:"urgent"`
	Status      ItemStatus `gorm:"type:varchar(20);not null;default:'todo';index" json:"status"`
	Progress    int        `gorm:"not null;default:0" json:"progress"`
	DueDate     *string    `gorm:"type:varchar(10);index" json:"due_date"`
	CompletedAt *time.Time `gorm:"index" json:"completed_at"`
	Position    int        `gorm:"not null;default:0;index:idx_progress_items_user_position,priority:2" json:"position"`

	// Derived, never stored
	Quadrant Quadrant `gorm:"-" json:"quadrant"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// IsDone reports whether the item is completed
func (p *ProgressItem) IsDone() bool {
	return p.Status == StatusDone
}

// SetStatus moves the item to s and keeps Progress and CompletedAt consistent with it.
// Reopening a finished item resets its progress to zero.
func (p *ProgressItem) SetStatus(s ItemStatus, now time.Time) {
	p.Status = s
	if s == StatusDone {
		p.Progress = 100
		if p.CompletedAt == nil {
			t := now.UTC()
			p.CompletedAt = &t
		}
		return
	}
	if p.Progress >= 100 {
		p.Progress = 0
	}
	p.CompletedAt = nil
}

// SetProgress records a completion percentage and derives the status from it
func (p *ProgressItem) SetProgress(progress int, now time.Time) {
	p.Progress = progress
	switch {
	case progress >= 100:
		p.SetStatus(StatusDone, now)
	case p.Status == StatusDone:
		p.CompletedAt = nil
		if progress > 0 {
			p.Status = StatusInProgress
		} else {
			p.Status = StatusTodo
		}
	case progress > 0 && p.Status == StatusTodo:
		p.Status = StatusInProgress
	}
}

// IsOverdue reports whether an open item's due date falls before date
func (p *ProgressItem) IsOverdue(date string) bool {
	return !p.IsDone() && p.DueDate != nil && *p.DueDate < date
}

func (p *ProgressItem) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = generateUUID()
	}
	if p.Status == "" {
		p.Status = StatusTodo
	}
	return nil
}

func (p *ProgressItem) BeforeSave(tx *gorm.DB) error {
	p.Quadrant = QuadrantFor(p.Important, p.Urgent)
	return nil
}

func (p *ProgressItem) AfterFind(tx *gorm.DB) error {
	p.Quadrant = QuadrantFor(p.Important, p.Urgent)
	return nil
}
