package commitments

import (
	"context"

	"github.com/zfogg/daybook/internal/models"
	"github.com/zfogg/daybook/internal/util"
)

// DayStatus is a commitment as seen on one calendar day
type DayStatus struct {
	Commitment models.Commitment `json:"commitment"`
	Scheduled  bool              `json:"scheduled"`
	Completed  bool              `json:"completed"`
	Streak     int               `json:"streak"`
}

// Day lists the user's unarchived commitments active on date with whether each
// is due and kept that day. Streaks are computed as of date.
func (s *Service) Day(ctx context.Context, user *models.User, date string) ([]DayStatus, error) {
	day, err := util.ParseDate(date)
	if err != nil {
		return nil, ErrInvalidDate
	}
	active, err := s.commitments.ListActiveOn(ctx, user.ID, date)
	if err != nil {
		return nil, err
	}
	done, err := s.commitments.LoggedOn(ctx, user.ID, date)
	if err != nil {
		return nil, err
	}

	out := make([]DayStatus, 0, len(active))
	for i := range active {
		c := &active[i]
		logged, err := s.loggedDates(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, DayStatus{
			Commitment: *c,
			Scheduled:  c.IsScheduledOn(day),
			Completed:  done[c.ID],
			Streak:     CurrentStreak(c, logged, date),
		})
	}
	return out, nil
}
