package commitments

import (
	"context"
	"time"

	"github.com/zfogg/daybook/internal/history"
	"github.com/zfogg/daybook/internal/models"
	"github.com/zfogg/daybook/internal/util"
)

// History buckets scheduled and kept days of one commitment over [from, to].
// Days after the user's today are not counted as scheduled.
func (s *Service) History(ctx context.Context, user *models.User, commitmentID string, g history.Granularity, from, to time.Time) ([]history.Bucket, error) {
	c, err := s.Get(ctx, user.ID, commitmentID)
	if err != nil {
		return nil, err
	}
	buckets, err := history.Buckets(g, from, to)
	if err != nil {
		return nil, err
	}

	logs, err := s.commitments.ListLogs(ctx, c.ID, util.FormatDate(from), util.FormatDate(to))
	if err != nil {
		return nil, err
	}
	logged := make(map[string]bool, len(logs))
	for _, l := range logs {
		logged[l.Date] = true
	}

	Tally(c, buckets, logged, s.Today(user))
	return buckets, nil
}

// Tally adds scheduled and completed day counts into buckets and sets their
// rates. Logs on days the schedule no longer covers are ignored.
func Tally(c *models.Commitment, buckets []history.Bucket, logged map[string]bool, today string) {
	if len(buckets) == 0 {
		history.Finalize(buckets)
		return
	}
	first, _ := util.ParseDate(buckets[0].Start)
	last, _ := util.ParseDate(buckets[len(buckets)-1].End)

	i := 0
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		date := util.FormatDate(d)
		if date > today {
			break
		}
		for i < len(buckets) && buckets[i].End < date {
			i++
		}
		if i == len(buckets) {
			break
		}
		if !c.IsScheduledOn(d) {
			continue
		}
		buckets[i].Scheduled++
		if logged[date] {
			buckets[i].Completed++
		}
	}
	history.Finalize(buckets)
}
