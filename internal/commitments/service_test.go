package commitments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/daybook/internal/dto"
	"github.com/zfogg/daybook/internal/events"
	"github.com/zfogg/daybook/internal/history"
	"github.com/zfogg/daybook/internal/models"
	"github.com/zfogg/daybook/internal/testutil"
	"github.com/zfogg/daybook/internal/util"
	"gorm.io/gorm"
)

// Wednesday 2026-03-11, noon UTC
var fixedNow = time.Date(2026, 3, 11, 12, 0, 0, 0, time.UTC)

type recorder struct {
	changes []events.Change
}

func (r *recorder) Publish(_ context.Context, c events.Change) {
	r.changes = append(r.changes, c)
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func setup(t *testing.T) (*Service, *gorm.DB, *models.User, *recorder) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "alice")
	rec := &recorder{}
	svc := NewService(db, rec)
	svc.now = func() time.Time { return fixedNow }
	return svc, db, user, rec
}

func mwf(t *testing.T, svc *Service, user *models.User, start string) *models.Commitment {
	t.Helper()
	c, err := svc.Create(context.Background(), user, dto.CreateCommitmentRequest{
		Title:     "Run",
		Schedule:  []string{"mon", "wed", "fri"},
		StartDate: strPtr(start),
	})
	require.NoError(t, err)
	return c
}

func TestCreate(t *testing.T) {
	svc, _, user, rec := setup(t)
	ctx := context.Background()

	c, err := svc.Create(ctx, user, dto.CreateCommitmentRequest{Title: " Read ", Schedule: []string{"Sat", "sun"}})
	require.NoError(t, err)
	assert.Equal(t, "Read", c.Title)
	assert.Equal(t, "2026-03-11", c.StartDate)
	assert.Equal(t, defaultColor, c.Color)
	assert.Equal(t, []string{"sat", "sun"}, c.Schedule.Names())
	require.Len(t, rec.changes, 1)
	assert.Equal(t, models.EntityCommitment, rec.changes[0].Entity)

	tests := []struct {
		name string
		req  dto.CreateCommitmentRequest
		want error
	}{
		{"blank title", dto.CreateCommitmentRequest{Title: "  ", Schedule: []string{"mon"}}, ErrBlankTitle},
		{"empty schedule", dto.CreateCommitmentRequest{Title: "x"}, ErrEmptySchedule},
		{"bad weekday", dto.CreateCommitmentRequest{Title: "x", Schedule: []string{"funday"}}, ErrInvalidSchedule},
		{"end before start", dto.CreateCommitmentRequest{
			Title: "x", Schedule: []string{"mon"}, StartDate: strPtr("2026-03-10"), EndDate: strPtr("2026-03-01"),
		}, ErrEndBeforeStart},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, user, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestUpdateAndList(t *testing.T) {
	svc, db, user, _ := setup(t)
	ctx := context.Background()
	c := mwf(t, svc, user, "2026-03-01")

	updated, err := svc.Update(ctx, user.ID, c.ID, dto.UpdateCommitmentRequest{
		Schedule: []string{"tue"},
		EndDate:  dto.OptionalString{Set: true, Value: strPtr("2026-04-01")},
		Archived: boolPtr(true),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"tue"}, updated.Schedule.Names())
	require.NotNil(t, updated.EndDate)
	assert.True(t, updated.Archived)

	cleared, err := svc.Update(ctx, user.ID, c.ID, dto.UpdateCommitmentRequest{EndDate: dto.OptionalString{Set: true}})
	require.NoError(t, err)
	assert.Nil(t, cleared.EndDate)

	_, err = svc.Update(ctx, user.ID, c.ID, dto.UpdateCommitmentRequest{Schedule: []string{}})
	assert.ErrorIs(t, err, ErrEmptySchedule)

	mwf(t, svc, user, "2026-03-01")
	all, err := svc.List(ctx, user.ID, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	archived, err := svc.List(ctx, user.ID, boolPtr(true))
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, c.ID, archived[0].ID)

	bob := testutil.CreateUser(t, db, "bob")
	_, err = svc.Update(ctx, bob.ID, c.ID, dto.UpdateCommitmentRequest{Title: strPtr("stolen")})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckInRules(t *testing.T) {
	svc, _, user, _ := setup(t)
	ctx := context.Background()
	c := mwf(t, svc, user, "2026-03-02")

	tests := []struct {
		name string
		date string
		want error
	}{
		{"future", "2026-03-13", ErrFutureDate},
		{"unscheduled weekday", "2026-03-10", ErrNotScheduled},
		{"before start", "2026-02-27", ErrNotScheduled},
		{"malformed", "03/11/2026", ErrInvalidDate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CheckIn(ctx, user, c.ID, dto.CheckInRequest{Date: tt.date})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	log, err := svc.CheckIn(ctx, user, c.ID, dto.CheckInRequest{Date: "2026-03-11", Note: "5k"})
	require.NoError(t, err)
	assert.Equal(t, "5k", log.Note)

	_, err = svc.CheckIn(ctx, user, c.ID, dto.CheckInRequest{Date: "2026-03-11"})
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)
}

func TestCheckInUsesUserTimezone(t *testing.T) {
	svc, db, user, _ := setup(t)
	ctx := context.Background()
	require.NoError(t, db.Model(user).Update("timezone", "Pacific/Kiritimati").Error)
	user.Timezone = "Pacific/Kiritimati"

	// UTC+14: already Thursday the 12th locally
	c, err := svc.Create(ctx, user, dto.CreateCommitmentRequest{Title: "Stretch", Schedule: []string{"thu"}})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-12", c.StartDate)

	_, err = svc.CheckIn(ctx, user, c.ID, dto.CheckInRequest{Date: "2026-03-12"})
	assert.NoError(t, err)
}

func TestUndoAndRestore(t *testing.T) {
	svc, _, user, rec := setup(t)
	ctx := context.Background()
	c := mwf(t, svc, user, "2026-03-02")

	first, err := svc.CheckIn(ctx, user, c.ID, dto.CheckInRequest{Date: "2026-03-09"})
	require.NoError(t, err)

	require.NoError(t, svc.UndoCheckIn(ctx, user.ID, c.ID, "2026-03-09"))
	assert.ErrorIs(t, svc.UndoCheckIn(ctx, user.ID, c.ID, "2026-03-09"), ErrLogNotFound)

	logs, err := svc.Logs(ctx, user.ID, c.ID, "", "")
	require.NoError(t, err)
	assert.Empty(t, logs)

	again, err := svc.CheckIn(ctx, user, c.ID, dto.CheckInRequest{Date: "2026-03-09", Note: "second try"})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "second try", again.Note)

	last := rec.changes[len(rec.changes)-1]
	assert.Equal(t, models.EntityCommitmentLog, last.Entity)
	assert.Equal(t, models.ActionCreate, last.Action)
}

func TestArchivedRejectsCheckIn(t *testing.T) {
	svc, _, user, _ := setup(t)
	ctx := context.Background()
	c := mwf(t, svc, user, "2026-03-02")
	_, err := svc.Update(ctx, user.ID, c.ID, dto.UpdateCommitmentRequest{Archived: boolPtr(true)})
	require.NoError(t, err)

	_, err = svc.CheckIn(ctx, user, c.ID, dto.CheckInRequest{Date: "2026-03-11"})
	assert.ErrorIs(t, err, ErrArchived)
}

func TestLogsRangeAndNotes(t *testing.T) {
	svc, _, user, _ := setup(t)
	ctx := context.Background()
	c := mwf(t, svc, user, "2026-03-02")
	for _, d := range []string{"2026-03-02", "2026-03-04", "2026-03-06", "2026-03-09"} {
		_, err := svc.CheckIn(ctx, user, c.ID, dto.CheckInRequest{Date: d})
		require.NoError(t, err)
	}

	logs, err := svc.Logs(ctx, user.ID, c.ID, "2026-03-04", "2026-03-06")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "2026-03-04", logs[0].Date)

	_, err = svc.Logs(ctx, user.ID, c.ID, "yesterday", "")
	assert.Error(t, err)

	noted, err := svc.UpdateLogNote(ctx, user.ID, logs[0].ID, "felt good")
	require.NoError(t, err)
	assert.Equal(t, "felt good", noted.Note)

	require.NoError(t, svc.DeleteLog(ctx, user.ID, logs[0].ID))
	_, err = svc.GetLog(ctx, user.ID, logs[0].ID)
	assert.ErrorIs(t, err, ErrLogNotFound)
}

func TestDeleteCommitment(t *testing.T) {
	svc, _, user, _ := setup(t)
	ctx := context.Background()
	c := mwf(t, svc, user, "2026-03-02")

	require.NoError(t, svc.Delete(ctx, user.ID, c.ID))
	_, err := svc.Get(ctx, user.ID, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, user.ID, c.ID), ErrNotFound)
}

func TestStreaks(t *testing.T) {
	c := &models.Commitment{StartDate: "2026-02-02"}
	c.Schedule, _ = models.ParseWeekdays([]string{"mon", "wed", "fri"})

	logged := map[string]bool{
		"2026-02-02": true, "2026-02-04": true, "2026-02-06": true,
		"2026-03-02": true, "2026-03-04": true, "2026-03-06": true, "2026-03-09": true,
	}
	today := "2026-03-11"

	// today is scheduled but not yet logged
	assert.Equal(t, 4, CurrentStreak(c, logged, today))
	assert.Equal(t, 4, LongestStreak(c, logged, today))

	logged[today] = true
	assert.Equal(t, 5, CurrentStreak(c, logged, today))
	assert.Equal(t, 5, LongestStreak(c, logged, today))

	// a missed Monday breaks the run
	delete(logged, "2026-03-09")
	assert.Equal(t, 1, CurrentStreak(c, logged, today))
	assert.Equal(t, 3, LongestStreak(c, logged, today))

	ended := *c
	ended.EndDate = strPtr("2026-03-06")
	assert.Equal(t, 3, CurrentStreak(&ended, logged, today))

	future := *c
	future.StartDate = "2026-04-01"
	assert.Equal(t, 0, CurrentStreak(&future, logged, today))
	assert.Equal(t, 0, LongestStreak(&future, logged, today))
}

func TestStreakService(t *testing.T) {
	svc, _, user, _ := setup(t)
	ctx := context.Background()
	c := mwf(t, svc, user, "2026-03-02")
	for _, d := range []string{"2026-03-06", "2026-03-09", "2026-03-11"} {
		_, err := svc.CheckIn(ctx, user, c.ID, dto.CheckInRequest{Date: d})
		require.NoError(t, err)
	}

	s, err := svc.Streak(ctx, user, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Current)
	assert.Equal(t, 3, s.Longest)
	assert.True(t, s.LoggedToday)
	assert.Equal(t, "2026-03-11", s.Today)
}

func TestHistory(t *testing.T) {
	svc, _, user, _ := setup(t)
	ctx := context.Background()
	c := mwf(t, svc, user, "2026-03-02")
	for _, d := range []string{"2026-03-02", "2026-03-04", "2026-03-06", "2026-03-09"} {
		_, err := svc.CheckIn(ctx, user, c.ID, dto.CheckInRequest{Date: d})
		require.NoError(t, err)
	}

	from, _ := util.ParseDate("2026-03-02")
	to, _ := util.ParseDate("2026-03-15")
	weeks, err := svc.History(ctx, user, c.ID, history.Week, from, to)
	require.NoError(t, err)
	require.Len(t, weeks, 2)
	assert.Equal(t, 3, weeks[0].Scheduled)
	assert.Equal(t, 3, weeks[0].Completed)
	assert.Equal(t, 1.0, weeks[0].Rate)
	// Friday the 13th is still in the future
	assert.Equal(t, 2, weeks[1].Scheduled)
	assert.Equal(t, 1, weeks[1].Completed)
	assert.Equal(t, 0.5, weeks[1].Rate)

	days, err := svc.History(ctx, user, c.ID, history.Day, from, to)
	require.NoError(t, err)
	require.Len(t, days, 14)
	assert.Equal(t, 0, days[1].Scheduled)
	assert.Equal(t, 0.0, days[1].Rate)
}

func TestDay(t *testing.T) {
	svc, _, user, _ := setup(t)
	ctx := context.Background()
	run := mwf(t, svc, user, "2026-03-02")
	read, err := svc.Create(ctx, user, dto.CreateCommitmentRequest{Title: "Read", Schedule: []string{"tue"}, StartDate: strPtr("2026-03-02")})
	require.NoError(t, err)
	_, err = svc.Create(ctx, user, dto.CreateCommitmentRequest{Title: "Old", Schedule: []string{"wed"}, Archived: true})
	require.NoError(t, err)

	_, err = svc.CheckIn(ctx, user, run.ID, dto.CheckInRequest{Date: "2026-03-11"})
	require.NoError(t, err)

	day, err := svc.Day(ctx, user, "2026-03-11")
	require.NoError(t, err)
	require.Len(t, day, 2)

	byID := map[string]DayStatus{}
	for _, d := range day {
		byID[d.Commitment.ID] = d
	}
	assert.True(t, byID[run.ID].Scheduled)
	assert.True(t, byID[run.ID].Completed)
	assert.Equal(t, 1, byID[run.ID].Streak)
	assert.False(t, byID[read.ID].Scheduled)
	assert.False(t, byID[read.ID].Completed)
}
