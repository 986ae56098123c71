package progress

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
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

type recorder struct {
	changes []events.Change
}

func (r *recorder) Publish(_ context.Context, c events.Change) {
	r.changes = append(r.changes, c)
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func setup(t *testing.T) (*Service, *gorm.DB, *models.User, *recorder) {
	db := testutil.NewDB(t)
	user := testutil.CreateUser(t, db, "alice")
	rec := &recorder{}
	return NewService(db, rec), db, user, rec
}

func TestCreateDefaults(t *testing.T) {
	svc, _, user, rec := setup(t)
	ctx := context.Background()

	item, err := svc.Create(ctx, user.ID, dto.CreateProgressItemRequest{Title: "  Write report  ", Important: true})
	require.NoError(t, err)
	assert.Equal(t, "Write report", item.Title)
	assert.Equal(t, models.StatusTodo, item.Status)
	assert.Equal(t, 0, item.Progress)
	assert.Equal(t, 0, item.Position)
	assert.Equal(t, models.QuadrantSchedule, item.Quadrant)

	second, err := svc.Create(ctx, user.ID, dto.CreateProgressItemRequest{Title: "Next"})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Position)

	require.Len(t, rec.changes, 2)
	assert.Equal(t, models.ActionCreate, rec.changes[0].Action)
	assert.Equal(t, item.ID, rec.changes[0].EntityID)
}

func TestCreateClientIDAndQuadrant(t *testing.T) {
	svc, db, user, _ := setup(t)
	ctx := context.Background()
	id := uuid.New().String()

	item, err := svc.Create(ctx, user.ID, dto.CreateProgressItemRequest{ID: &id, Title: "Offline", Quadrant: strPtr("delegate")})
	require.NoError(t, err)
	assert.Equal(t, id, item.ID)
	assert.False(t, item.Important)
	assert.True(t, item.Urgent)

	_, err = svc.Create(ctx, user.ID, dto.CreateProgressItemRequest{ID: &id, Title: "Again"})
	assert.ErrorIs(t, err, ErrDuplicateID)

	// ids are global; another user cannot claim it either
	bob := testutil.CreateUser(t, db, "bob")
	_, err = svc.Create(ctx, bob.ID, dto.CreateProgressItemRequest{ID: &id, Title: "Mine"})
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestCreateDoneKeepsInvariant(t *testing.T) {
	svc, _, user, _ := setup(t)
	ctx := context.Background()

	item, err := svc.Create(ctx, user.ID, dto.CreateProgressItemRequest{Title: "Done already", Status: strPtr("done")})
	require.NoError(t, err)
	assert.Equal(t, 100, item.Progress)
	assert.NotNil(t, item.CompletedAt)

	item, err = svc.Create(ctx, user.ID, dto.CreateProgressItemRequest{Title: "Full progress", Progress: intPtr(100)})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, item.Status)
	assert.NotNil(t, item.CompletedAt)

	item, err = svc.Create(ctx, user.ID, dto.CreateProgressItemRequest{Title: "Started", Progress: intPtr(30)})
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, item.Status)
	assert.Nil(t, item.CompletedAt)
}

func TestStatusProgressInvariant(t *testing.T) {
	svc, _, user, _ := setup(t)
	ctx := context.Background()

	item, err := svc.Create(ctx, user.ID, dto.CreateProgressItemRequest{Title: "Task"})
	require.NoError(t, err)

	tests := []struct {
		name         string
		req          dto.UpdateProgressItemRequest
		wantStatus   models.ItemStatus
		wantProgress int
		wantDone     bool
	}{
		{"progress starts work", dto.UpdateProgressItemRequest{Progress: intPtr(40)}, models.StatusInProgress, 40, false},
		{"progress 100 completes", dto.UpdateProgressItemRequest{Progress: intPtr(100)}, models.StatusDone, 100, true},
		{"reopen resets progress", dto.UpdateProgressItemRequest{Status: strPtr("todo")}, models.StatusTodo, 0, false},
		{"done sets progress", dto.UpdateProgressItemRequest{Status: strPtr("done")}, models.StatusDone, 100, true},
		{"lower progress reopens", dto.UpdateProgressItemRequest{Progress: intPtr(60)}, models.StatusInProgress, 60, false},
		{"complete again", dto.UpdateProgressItemRequest{Status: strPtr("done")}, models.StatusDone, 100, true},
		{"progress zero", dto.UpdateProgressItemRequest{Progress: intPtr(0)}, models.StatusTodo, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Update(ctx, user.ID, item.ID, tt.req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantProgress, got.Progress)
			assert.Equal(t, tt.wantDone, got.CompletedAt != nil)

			stored, err := svc.Get(ctx, user.ID, item.ID)
			require.NoError(t, err)
			assert.Equal(t, got.Status, stored.Status)
			assert.Equal(t, got.Progress, stored.Progress)
		})
	}
}

func TestUpdateDueDateClearAndOwnership(t *testing.T) {
	svc, db, user, _ := setup(t)
	ctx := context.Background()

	item, err := svc.Create(ctx, user.ID, dto.CreateProgressItemRequest{Title: "Due", DueDate: strPtr("2024-05-01")})
	require.NoError(t, err)

	// absent key leaves it alone
	got, err := svc.Update(ctx, user.ID, item.ID, dto.UpdateProgressItemRequest{Title: strPtr("Renamed")})
	require.NoError(t, err)
	require.NotNil(t, got.DueDate)
	assert.Equal(t, "2024-05-01", *got.DueDate)

	got, err = svc.Update(ctx, user.ID, item.ID, dto.UpdateProgressItemRequest{DueDate: dto.NewOptionalString(nil)})
	require.NoError(t, err)
	assert.Nil(t, got.DueDate)

	_, err = svc.Update(ctx, user.ID, item.ID, dto.UpdateProgressItemRequest{Title: strPtr("   ")})
	assert.ErrorIs(t, err, ErrBlankTitle)

	bob := testutil.CreateUser(t, db, "bob")
	_, err = svc.Get(ctx, bob.ID, item.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Update(ctx, bob.ID, item.ID, dto.UpdateProgressItemRequest{Title: strPtr("Stolen")})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, bob.ID, item.ID), ErrNotFound)
}

func TestListFilters(t *testing.T) {
	svc, _, user, _ := setup(t)
	ctx := context.Background()

	mk := func(title string, important, urgent bool, due *string) {
		_, err := svc.Create(ctx, user.ID, dto.CreateProgressItemRequest{Title: title, Important: important, Urgent: urgent, DueDate: due})
		require.NoError(t, err)
	}
	mk("Fire drill", true, true, strPtr("2024-03-01"))
	mk("Plan quarter", true, false, strPtr("2024-04-01"))
	mk("Answer email", false, true, nil)
	mk("Browse news", false, false, strPtr("2024-02-01"))

	items, total, err := svc.List(ctx, user.ID, ListOptions{Quadrant: "do"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, "Fire drill", items[0].Title)

	items, _, err = svc.List(ctx, user.ID, ListOptions{Sort: "due_date"})
	require.NoError(t, err)
	require.Len(t, items, 4)
	assert.Equal(t, "Browse news", items[0].Title)
	assert.Equal(t, "Answer email", items[3].Title, "null due dates sort last")

	items, _, err = svc.List(ctx, user.ID, ListOptions{DueBefore: "2024-03-15"})
	require.NoError(t, err)
	assert.Len(t, items, 2)

	items, _, err = svc.List(ctx, user.ID, ListOptions{Query: "EMAIL"})
	require.NoError(t, err)
	require.Len(t, items, 1)

	items, total, err = svc.List(ctx, user.ID, ListOptions{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, int64(4), total)
	assert.Equal(t, "Plan quarter", items[0].Title)

	_, _, err = svc.List(ctx, user.ID, ListOptions{Quadrant: "later"})
	assert.ErrorIs(t, err, ErrInvalidQuadrant)
	_, _, err = svc.List(ctx, user.ID, ListOptions{Sort: "priority"})
	assert.ErrorIs(t, err, ErrInvalidSort)
	_, _, err = svc.List(ctx, user.ID, ListOptions{Status: "blocked"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCompleteAndDelete(t *testing.T) {
	svc, db, user, rec := setup(t)
	ctx := context.Background()

	item, err := svc.Create(ctx, user.ID, dto.CreateProgressItemRequest{Title: "Finish"})
	require.NoError(t, err)

	event := &models.TimelineEvent{UserID: user.ID, Title: "Work on it", StartsAt: time.Now().UTC(), EndsAt: time.Now().UTC().Add(time.Hour), ProgressItemID: &item.ID}
	require.NoError(t, db.Create(event).Error)

	done, err := svc.Complete(ctx, user.ID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, done.Status)
	completedAt := *done.CompletedAt

	// completing again keeps the original timestamp
	again, err := svc.Complete(ctx, user.ID, item.ID)
	require.NoError(t, err)
	assert.True(t, completedAt.Equal(*again.CompletedAt))

	require.NoError(t, svc.Delete(ctx, user.ID, item.ID))
	_, err = svc.Get(ctx, user.ID, item.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, user.ID, item.ID), ErrNotFound)

	var reloaded models.TimelineEvent
	require.NoError(t, db.First(&reloaded, "id = ?", event.ID).Error)
	assert.Nil(t, reloaded.ProgressItemID)

	last := rec.changes[len(rec.changes)-1]
	assert.Equal(t, models.ActionDelete, last.Action)
	assert.Nil(t, last.Object)
}

func TestReorder(t *testing.T) {
	svc, db, user, _ := setup(t)
	ctx := context.Background()

	var ids []string
	for _, title := range []string{"a", "b", "c"} {
		item, err := svc.Create(ctx, user.ID, dto.CreateProgressItemRequest{Title: title})
		require.NoError(t, err)
		ids = append(ids, item.ID)
	}

	items, err := svc.Reorder(ctx, user.ID, []string{ids[2], ids[0], ids[1]})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "c", items[0].Title)
	assert.Equal(t, 0, items[0].Position)
	assert.Equal(t, "b", items[2].Title)
	assert.Equal(t, 2, items[2].Position)

	_, err = svc.Reorder(ctx, user.ID, []string{ids[0], ids[0]})
	assert.ErrorIs(t, err, ErrRepeatedID)

	bob := testutil.CreateUser(t, db, "bob")
	_, err = svc.Reorder(ctx, bob.ID, []string{ids[0]})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGroupByQuadrantAlwaysHasAllKeys(t *testing.T) {
	groups := GroupByQuadrant(nil)
	require.Len(t, groups, 4)
	for _, q := range models.Quadrants {
		assert.NotNil(t, groups[q], string(q))
		assert.Empty(t, groups[q])
	}

	groups = GroupByQuadrant([]models.ProgressItem{
		{Title: "a", Important: true, Urgent: true},
		{Title: "b", Important: true},
		{Title: "c", Urgent: true},
		{Title: "d"},
		{Title: "e", Important: true, Urgent: true},
	})
	assert.Len(t, groups[models.QuadrantDo], 2)
	assert.Len(t, groups[models.QuadrantSchedule], 1)
	assert.Len(t, groups[models.QuadrantDelegate], 1)
	assert.Len(t, groups[models.QuadrantEliminate], 1)
}

func TestMatrixExcludesDone(t *testing.T) {
	svc, _, user, _ := setup(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, user.ID, dto.CreateProgressItemRequest{Title: "open", Important: true})
	require.NoError(t, err)
	_, err = svc.Create(ctx, user.ID, dto.CreateProgressItemRequest{Title: "closed", Important: true, Status: strPtr("done")})
	require.NoError(t, err)

	groups, err := svc.Matrix(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, groups[models.QuadrantSchedule], 1)
	assert.Equal(t, "open", groups[models.QuadrantSchedule][0].Title)
}

func TestHistory(t *testing.T) {
	svc, _, user, _ := setup(t)
	ctx := context.Background()

	// completions are stamped by the service clock
	svc.now = func() time.Time { return time.Date(2024, 3, 5, 23, 30, 0, 0, time.UTC) }
	_, err := svc.Create(ctx, user.ID, dto.CreateProgressItemRequest{Title: "on time", DueDate: strPtr("2024-03-05"), Status: strPtr("done")})
	require.NoError(t, err)
	_, err = svc.Create(ctx, user.ID, dto.CreateProgressItemRequest{Title: "late", DueDate: strPtr("2024-03-04"), Status: strPtr("done")})
	require.NoError(t, err)
	_, err = svc.Create(ctx, user.ID, dto.CreateProgressItemRequest{Title: "open", DueDate: strPtr("2024-03-06")})
	require.NoError(t, err)

	from, _ := util.ParseDate("2024-03-04")
	to, _ := util.ParseDate("2024-03-06")
	buckets, err := svc.History(ctx, user.ID, history.Day, from, to, time.UTC)
	require.NoError(t, err)
	require.Len(t, buckets, 3)

	assert.Equal(t, 1, buckets[0].Scheduled)
	assert.Equal(t, 0, buckets[0].Completed)
	assert.Equal(t, 1, buckets[1].Scheduled)
	assert.Equal(t, 1, buckets[1].Completed)
	assert.Equal(t, 1.0, buckets[1].Rate)
	assert.Equal(t, 2, buckets[1].Done)
	assert.Equal(t, 0, buckets[2].Done)

	// in Tokyo the 23:30 UTC completion is already March 6th
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	buckets, err = svc.History(ctx, user.ID, history.Day, from, to, tokyo)
	require.NoError(t, err)
	assert.Equal(t, 0, buckets[1].Done)
	assert.Equal(t, 2, buckets[2].Done)
	assert.Equal(t, 0, buckets[1].Completed, "finished after its local due date")
}
