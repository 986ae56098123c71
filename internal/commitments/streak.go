package commitments

import (
	"context"
	"time"

	"github.com/zfogg/daybook/internal/models"
	"github.com/zfogg/daybook/internal/util"
)

// StreakSummary is the current and best run of kept scheduled days
type StreakSummary struct {
	CommitmentID string `json:"commitment_id"`
	Today        string `json:"today"`
	Current      int    `json:"current"`
	Longest      int    `json:"longest"`
	LoggedToday  bool   `json:"logged_today"`
}

// Streak computes the streaks of one commitment as of the user's today
func (s *Service) Streak(ctx context.Context, user *models.User, commitmentID string) (*StreakSummary, error) {
	c, err := s.Get(ctx, user.ID, commitmentID)
	if err != nil {
		return nil, err
	}
	logged, err := s.loggedDates(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	today := s.Today(user)
	return &StreakSummary{
		CommitmentID: c.ID,
		Today:        today,
		Current:      CurrentStreak(c, logged, today),
		Longest:      LongestStreak(c, logged, today),
		LoggedToday:  logged[today],
	}, nil
}

func (s *Service) loggedDates(ctx context.Context, commitmentID string) (map[string]bool, error) {
	dates, err := s.commitments.LogDates(ctx, commitmentID)
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(dates))
	for _, d := range dates {
		set[d] = true
	}
	return set, nil
}

// CurrentStreak counts consecutive scheduled days with a log, walking back from
// today. Unscheduled days are skipped and an unlogged today does not break the run.
func CurrentStreak(c *models.Commitment, logged map[string]bool, today string) int {
	first, last, ok := span(c, today)
	if !ok {
		return 0
	}

	streak := 0
	for d := last; !d.Before(first); d = d.AddDate(0, 0, -1) {
		if !c.Schedule.Has(d.Weekday()) {
			continue
		}
		date := util.FormatDate(d)
		if logged[date] {
			streak++
			continue
		}
		if date == today {
			continue
		}
		break
	}
	return streak
}

// LongestStreak is the longest run of consecutive scheduled days with a log
// between the start date and today
func LongestStreak(c *models.Commitment, logged map[string]bool, today string) int {
	first, last, ok := span(c, today)
	if !ok {
		return 0
	}

	best, run := 0, 0
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		if !c.Schedule.Has(d.Weekday()) {
			continue
		}
		date := util.FormatDate(d)
		switch {
		case logged[date]:
			run++
			if run > best {
				best = run
			}
		case date == today:
		default:
			run = 0
		}
	}
	return best
}

// span is the part of [StartDate, EndDate] that is not in the future
func span(c *models.Commitment, today string) (time.Time, time.Time, bool) {
	lastDate := today
	if c.EndDate != nil && *c.EndDate < lastDate {
		lastDate = *c.EndDate
	}
	if lastDate < c.StartDate {
		return time.Time{}, time.Time{}, false
	}
	first, err := util.ParseDate(c.StartDate)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	last, err := util.ParseDate(lastDate)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return first, last, true
}
