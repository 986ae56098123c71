// Package history splits date ranges into day, ISO-week or calendar-month buckets.
package history

import (
	"math"
	"sort"
	"time"

	"github.com/zfogg/daybook/internal/errors"
	"github.com/zfogg/daybook/internal/util"
)

// Granularity is the bucket size
type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
)

// Range limits: days for daily buckets, calendar years otherwise
const (
	maxDayRange   = 366
	maxOtherYears = 3
)

var (
	ErrInvalidGranularity = errors.ValidationError("granularity", "granularity must be one of day, week, month")
	ErrInvertedRange      = errors.ValidationError("from", "from must not be after to")
	ErrRangeTooLarge      = errors.ValidationError("from", "date range is too large for this granularity")
)

// ParseGranularity validates a granularity name; "" means day
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case "":
		return Day, nil
	case Day, Week, Month:
		return Granularity(s), nil
	}
	return "", ErrInvalidGranularity
}

// Bucket is one period of a history series. Start and End are inclusive dates.
type Bucket struct {
	Start     string  `json:"start"`
	End       string  `json:"end"`
	Scheduled int     `json:"scheduled"`
	Completed int     `json:"completed"`
	Rate      float64 `json:"rate"`
}

// Contains reports whether date falls inside the bucket
func (b Bucket) Contains(date string) bool {
	return date >= b.Start && date <= b.End
}

// Rate is completed/scheduled rounded to 4 decimals; 0 when nothing was scheduled
func Rate(completed, scheduled int) float64 {
	if scheduled <= 0 {
		return 0
	}
	return math.Round(float64(completed)/float64(scheduled)*10000) / 10000
}

// Finalize fills in Rate for every bucket
func Finalize(buckets []Bucket) {
	for i := range buckets {
		buckets[i].Rate = Rate(buckets[i].Completed, buckets[i].Scheduled)
	}
}

// ParseRange resolves the from/to query values. Missing bounds default to a window
// ending today: 30 days, 12 weeks or 12 months depending on g.
func ParseRange(fromStr, toStr string, g Granularity, today string) (time.Time, time.Time, error) {
	if toStr == "" {
		toStr = today
	}
	to, err := util.ParseDate(toStr)
	if err != nil {
		return time.Time{}, time.Time{}, errors.ValidationError("to", err.Error())
	}

	var from time.Time
	if fromStr == "" {
		switch g {
		case Week:
			from = StartOfWeek(to).AddDate(0, 0, -7*11)
		case Month:
			from = StartOfMonth(to).AddDate(0, -11, 0)
		default:
			from = to.AddDate(0, 0, -29)
		}
	} else {
		from, err = util.ParseDate(fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.ValidationError("from", err.Error())
		}
	}
	return from, to, nil
}

// Buckets returns contiguous buckets covering [from, to] (both dates inclusive).
// The first and last bucket are clipped to the range.
func Buckets(g Granularity, from, to time.Time) ([]Bucket, error) {
	from = truncate(from)
	to = truncate(to)

	if from.After(to) {
		return nil, ErrInvertedRange
	}
	if g == Day {
		if days := int(to.Sub(from).Hours()/24) + 1; days > maxDayRange {
			return nil, ErrRangeTooLarge
		}
	} else if !to.Before(from.AddDate(maxOtherYears, 0, 0)) {
		return nil, ErrRangeTooLarge
	}

	var buckets []Bucket
	for cur := from; !cur.After(to); {
		var next time.Time
		switch g {
		case Day:
			next = cur.AddDate(0, 0, 1)
		case Week:
			next = StartOfWeek(cur).AddDate(0, 0, 7)
		case Month:
			next = StartOfMonth(cur).AddDate(0, 1, 0)
		default:
			return nil, ErrInvalidGranularity
		}
		end := next.AddDate(0, 0, -1)
		if end.After(to) {
			end = to
		}
		buckets = append(buckets, Bucket{
			Start: util.FormatDate(cur),
			End:   util.FormatDate(end),
		})
		cur = next
	}
	return buckets, nil
}

// Index finds the bucket holding date, or -1
func Index(buckets []Bucket, date string) int {
	i := sort.Search(len(buckets), func(i int) bool { return buckets[i].End >= date })
	if i < len(buckets) && buckets[i].Contains(date) {
		return i
	}
	return -1
}

// StartOfWeek returns the Monday on or before t
func StartOfWeek(t time.Time) time.Time {
	t = truncate(t)
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}

// StartOfMonth returns the first day of t's month
func StartOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
