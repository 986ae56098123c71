package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

// WeekdayMask is a set of weekdays stored as a bitmask (bit 0 = Sunday, matching time.Weekday).
// On the wire it is a list of three-letter names in Monday-first order.
type WeekdayMask uint8

// AllWeekdays is every day of the week
const AllWeekdays WeekdayMask = 0x7f

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

var weekdayOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

// IsWeekdayName reports whether s names a weekday (mon..sun, case-insensitive)
func IsWeekdayName(s string) bool {
	_, ok := weekdayNames[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// ParseWeekdays builds a mask from weekday names
func ParseWeekdays(names []string) (WeekdayMask, error) {
	var m WeekdayMask
	for _, n := range names {
		d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(n))]
		if !ok {
			return 0, fmt.Errorf("unknown weekday %q", n)
		}
		m = m.With(d)
	}
	return m, nil
}

// With returns the mask with d added
func (m WeekdayMask) With(d time.Weekday) WeekdayMask {
	return m | 1<<uint(d)
}

// Has reports whether d is in the mask
func (m WeekdayMask) Has(d time.Weekday) bool {
	return m&(1<<uint(d)) != 0
}

// IsEmpty reports whether no weekday is set
func (m WeekdayMask) IsEmpty() bool {
	return m&AllWeekdays == 0
}

// Names lists the weekdays in Monday-first order
func (m WeekdayMask) Names() []string {
	names := make([]string, 0, 7)
	for _, d := range weekdayOrder {
		if m.Has(d) {
			names = append(names, strings.ToLower(d.String()[:3]))
		}
	}
	return names
}

// MarshalJSON renders the mask as weekday names
func (m WeekdayMask) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Names())
}

// UnmarshalJSON accepts a list of weekday names
func (m *WeekdayMask) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return fmt.Errorf("schedule must be a list of weekday names: %w", err)
	}
	parsed, err := ParseWeekdays(names)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Scan implements the sql.Scanner interface
func (m *WeekdayMask) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = 0
	case int64:
		*m = WeekdayMask(v)
	case int32:
		*m = WeekdayMask(v)
	case []byte:
		var n int64
		if _, err := fmt.Sscan(string(v), &n); err != nil {
			return err
		}
		*m = WeekdayMask(n)
	default:
		return fmt.Errorf("cannot scan %T into WeekdayMask", value)
	}
	return nil
}

// Value implements the driver.Valuer interface
func (m WeekdayMask) Value() (driver.Value, error) {
	return int64(m), nil
}

// GormDataType stores the mask as a small integer
func (WeekdayMask) GormDataType() string {
	return "smallint"
}

// Commitment is a recurring habit with a weekly schedule
type Commitment struct {
	ID          string      `gorm:"primaryKey;type:uuid" json:"id"`
	UserID      string      `gorm:"type:uuid;not null;index" json:"user_id"`
	Title       string      `gorm:"type:varchar(200);not null" json:"title"`
	Description string      `gorm:"type:text" json:"description"`
	Schedule    WeekdayMask `gorm:"not null" json:"schedule"`
	StartDate   string      `gorm:"type:varchar(10);not null" json:"start_date"`
	EndDate     *string     `gorm:"type:varchar(10)" json:"end_date"`
	Color       string      `gorm:"type:varchar(7);not null;default:'#4f46e5'" json:"color"`
	Archived    bool        `gorm:"not null;default:false;index" json:"archived"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// ActiveOn reports whether date (YYYY-MM-DD) lies within [StartDate, EndDate]
func (c *Commitment) ActiveOn(date string) bool {
	if date < c.StartDate {
		return false
	}
	return c.EndDate == nil || date <= *c.EndDate
}

// IsScheduledOn reports whether a check-in is expected on date
func (c *Commitment) IsScheduledOn(date time.Time) bool {
	return c.ActiveOn(date.Format("2006-01-02")) && c.Schedule.Has(date.Weekday())
}

// CommitmentLog records that a commitment was kept on a given day.
// Undoing a check-in soft-deletes the row; checking in again restores it.
type CommitmentLog struct {
	ID           string `gorm:"primaryKey;type:uuid" json:"id"`
	CommitmentID string `gorm:"type:uuid;not null;uniqueIndex:idx_commitment_logs_day,priority:1" json:"commitment_id"`
	UserID       string `gorm:"type:uuid;not null;index" json:"user_id"`
	Date         string `gorm:"type:varchar(10);not null;uniqueIndex:idx_commitment_logs_day,priority:2" json:"date"`
	Note         string `gorm:"type:text" json:"note"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (c *Commitment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = generateUUID()
	}
	if c.Color == "" {
		c.Color = "#4f46e5"
	}
	return nil
}

func (l *CommitmentLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == "" {
		l.ID = generateUUID()
	}
	return nil
}
