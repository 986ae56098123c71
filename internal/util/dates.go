package util

import (
	"fmt"
	"time"
)

// DateLayout is the wire format for calendar dates
const DateLayout = "2006-01-02"

// ParseDate parses a YYYY-MM-DD string into midnight UTC
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate renders the calendar date of t, ignoring its clock
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// IsDate reports whether s is a valid YYYY-MM-DD date
func IsDate(s string) bool {
	_, err := time.ParseInLocation(DateLayout, s, time.UTC)
	return err == nil
}

// LoadLocation resolves an IANA timezone name, treating "" as UTC
func LoadLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tz)
}

// TodayIn returns the calendar date of now in the named timezone.
// Unknown zones fall back to UTC.
func TodayIn(tz string, now time.Time) string {
	loc, err := LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	return FormatDate(now.In(loc))
}

// LocalDayBounds returns [start, end) of the calendar day in loc as absolute instants
func LocalDayBounds(date string, loc *time.Location) (time.Time, time.Time, error) {
	d, err := ParseDate(date)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1), nil
}
