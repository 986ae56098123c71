package progress

import (
	"context"
	"time"

	"github.com/zfogg/daybook/internal/history"
	"github.com/zfogg/daybook/internal/util"
)

// HistoryBucket counts items due in a period and how many of those were finished
// by their due date. Done counts every completion inside the period.
type HistoryBucket struct {
	history.Bucket
	Done int `json:"done"`
}

// History buckets the user's items over [from, to]. Completion days are taken
// in loc so a task finished late in the evening lands on the user's calendar day.
func (s *Service) History(ctx context.Context, userID string, g history.Granularity, from, to time.Time, loc *time.Location) ([]HistoryBucket, error) {
	buckets, err := history.Buckets(g, from, to)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	fromDate, toDate := util.FormatDate(from), util.FormatDate(to)

	due, err := s.items.ListDueBetween(ctx, userID, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	for _, item := range due {
		i := history.Index(buckets, *item.DueDate)
		if i < 0 {
			continue
		}
		buckets[i].Scheduled++
		if item.IsDone() && item.CompletedAt != nil && util.FormatDate(item.CompletedAt.In(loc)) <= *item.DueDate {
			buckets[i].Completed++
		}
	}
	history.Finalize(buckets)

	start, _, err := util.LocalDayBounds(fromDate, loc)
	if err != nil {
		return nil, err
	}
	_, end, err := util.LocalDayBounds(toDate, loc)
	if err != nil {
		return nil, err
	}
	completed, err := s.items.ListCompletedBetween(ctx, userID, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}

	out := make([]HistoryBucket, len(buckets))
	for i, b := range buckets {
		out[i] = HistoryBucket{Bucket: b}
	}
	for _, item := range completed {
		if i := history.Index(buckets, util.FormatDate(item.CompletedAt.In(loc))); i >= 0 {
			out[i].Done++
		}
	}
	return out, nil
}
