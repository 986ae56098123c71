package search

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/daybook/internal/dto"
	"github.com/zfogg/daybook/internal/events"
	"github.com/zfogg/daybook/internal/models"
	"github.com/zfogg/daybook/internal/progress"
	"github.com/zfogg/daybook/internal/testutil"
	"github.com/zfogg/daybook/internal/timeline"
)

type fakeBackend struct {
	mu        sync.Mutex
	docs      map[string]Document
	hits      []Hit
	searchErr error
	indexErr  error
	searches  int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{docs: map[string]Document{}}
}

func (f *fakeBackend) IndexDocument(_ context.Context, doc Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.indexErr != nil {
		return f.indexErr
	}
	f.docs[doc.DocumentID()] = doc
	return nil
}

func (f *fakeBackend) DeleteDocument(_ context.Context, docType, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, documentID(docType, id))
	return nil
}

func (f *fakeBackend) Search(_ context.Context, _, _ string, _ int) ([]Hit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	return f.hits, f.searchErr
}

func TestSearchSQL(t *testing.T) {
	db := testutil.NewDB(t)
	alice := testutil.CreateUser(t, db, "alice")
	bob := testutil.CreateUser(t, db, "bob")
	ctx := context.Background()

	items := progress.NewService(db, nil)
	_, err := items.Create(ctx, alice.ID, dto.CreateProgressItemRequest{Title: "Write report", Description: "quarterly numbers"})
	require.NoError(t, err)
	_, err = items.Create(ctx, alice.ID, dto.CreateProgressItemRequest{Title: "Groceries", Description: "remember the REPORT card for school"})
	require.NoError(t, err)
	_, err = items.Create(ctx, bob.ID, dto.CreateProgressItemRequest{Title: "Report bug"})
	require.NoError(t, err)

	tl := timeline.NewService(db, nil)
	_, err = tl.Create(ctx, alice, dto.CreateTimelineEventRequest{Title: "Report review", StartsAt: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	svc := NewService(db, nil)
	results, err := svc.Search(ctx, alice.ID, "  report ", 0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// title matches rank above the description-only match
	assert.Equal(t, "Report review", results[0].Title)
	assert.Equal(t, TypeTimelineEvent, results[0].Type)
	assert.Equal(t, "Write report", results[1].Title)
	assert.Equal(t, TypeProgressItem, results[1].Type)
	assert.Equal(t, "Groceries", results[2].Title)
	assert.Contains(t, results[2].Snippet, "REPORT card")
	assert.Greater(t, results[1].Score, results[2].Score)

	limited, err := svc.Search(ctx, alice.ID, "report", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	_, err = svc.Search(ctx, alice.ID, "   ", 10)
	assert.ErrorIs(t, err, ErrEmptyQuery)
}

func TestSearchBackend(t *testing.T) {
	db := testutil.NewDB(t)
	alice := testutil.CreateUser(t, db, "alice")
	ctx := context.Background()

	backend := newFakeBackend()
	backend.hits = []Hit{
		{Document: Document{ID: "a", Type: TypeProgressItem, Title: "From index", Description: "body text"}, Score: 4.2, Highlight: "<em>body</em> text"},
		{Document: Document{ID: "b", Type: TypeTimelineEvent, Title: "No highlight", Description: "some body here"}, Score: 1.1},
	}
	svc := NewService(db, backend)

	results, err := svc.Search(ctx, alice.ID, "body", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, Result{Type: TypeProgressItem, ID: "a", Title: "From index", Snippet: "<em>body</em> text", Score: 4.2}, results[0])
	assert.Equal(t, "some body here", results[1].Snippet)
}

func TestSearchFallsBackWhenBackendFails(t *testing.T) {
	db := testutil.NewDB(t)
	alice := testutil.CreateUser(t, db, "alice")
	ctx := context.Background()

	_, err := progress.NewService(db, nil).Create(ctx, alice.ID, dto.CreateProgressItemRequest{Title: "Plan trip"})
	require.NoError(t, err)

	backend := newFakeBackend()
	backend.searchErr = stderrors.New("connection refused")
	svc := NewService(db, backend)

	results, err := svc.Search(ctx, alice.ID, "trip", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Plan trip", results[0].Title)
	assert.Equal(t, 1, backend.searches)
}

func TestSnippet(t *testing.T) {
	long := strings.Repeat("a", 100) + " needle " + strings.Repeat("b", 100)

	tests := []struct {
		name string
		text string
		q    string
		want string
	}{
		{"empty", "", "x", ""},
		{"short text whole", "find the needle here", "needle", "find the needle here"},
		{"whitespace collapsed", "one\n\ntwo   three", "two", "one two three"},
		{"no match starts at beginning", "abc", "zzz", "abc"},
		{"window with ellipses", long, "needle", "..." + strings.Repeat("a", 59) + " needle " + strings.Repeat("b", 59) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Snippet(tt.text, tt.q))
		})
	}
}

func TestIndexerFollowsChanges(t *testing.T) {
	db := testutil.NewDB(t)
	alice := testutil.CreateUser(t, db, "alice")
	ctx := context.Background()

	backend := newFakeBackend()
	bus := events.NewBus()
	bus.Subscribe(&Indexer{backend: backend})

	items := progress.NewService(db, bus)
	item, err := items.Create(ctx, alice.ID, dto.CreateProgressItemRequest{Title: "Indexed"})
	require.NoError(t, err)
	require.Contains(t, backend.docs, documentID(TypeProgressItem, item.ID))
	assert.Equal(t, "Indexed", backend.docs[documentID(TypeProgressItem, item.ID)].Title)
	assert.Equal(t, alice.ID, backend.docs[documentID(TypeProgressItem, item.ID)].UserID)

	tl := timeline.NewService(db, bus)
	e, err := tl.Create(ctx, alice, dto.CreateTimelineEventRequest{Title: "Dentist", Location: "Main St", StartsAt: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	doc := backend.docs[documentID(TypeTimelineEvent, e.ID)]
	assert.Equal(t, "Main St", doc.Location)
	assert.Equal(t, "2026-03-11", doc.Date)

	require.NoError(t, items.Delete(ctx, alice.ID, item.ID))
	assert.NotContains(t, backend.docs, documentID(TypeProgressItem, item.ID))

	// changes to other entities are ignored
	bus.Publish(ctx, events.Change{UserID: alice.ID, Entity: models.EntityCommitment, Action: models.ActionCreate, EntityID: "c1"})
	assert.Len(t, backend.docs, 1)
}

func TestReconcile(t *testing.T) {
	db := testutil.NewDB(t)
	alice := testutil.CreateUser(t, db, "alice")
	ctx := context.Background()

	items := progress.NewService(db, nil)
	keep, err := items.Create(ctx, alice.ID, dto.CreateProgressItemRequest{Title: "Keep"})
	require.NoError(t, err)
	gone, err := items.Create(ctx, alice.ID, dto.CreateProgressItemRequest{Title: "Gone"})
	require.NoError(t, err)
	require.NoError(t, items.Delete(ctx, alice.ID, gone.ID))
	_, err = timeline.NewService(db, nil).Create(ctx, alice, dto.CreateTimelineEventRequest{Title: "Event", StartsAt: time.Date(2026, 3, 11, 9, 0, 0, 0, time.UTC)})
	require.NoError(t, err)

	backend := newFakeBackend()
	backend.docs[documentID(TypeProgressItem, gone.ID)] = Document{ID: gone.ID, Type: TypeProgressItem}
	rs := NewReconciliationService(db, backend, time.Hour)

	indexed, removed, err := rs.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, indexed)
	assert.Equal(t, 1, removed)
	assert.Contains(t, backend.docs, documentID(TypeProgressItem, keep.ID))
	assert.NotContains(t, backend.docs, documentID(TypeProgressItem, gone.ID))

	indexed, removed, err = rs.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, indexed)
	assert.Zero(t, removed)
}

func TestReconcileKeepsCursorOnFailure(t *testing.T) {
	db := testutil.NewDB(t)
	alice := testutil.CreateUser(t, db, "alice")
	ctx := context.Background()

	_, err := progress.NewService(db, nil).Create(ctx, alice.ID, dto.CreateProgressItemRequest{Title: "Retry me"})
	require.NoError(t, err)

	backend := newFakeBackend()
	backend.indexErr = stderrors.New("unavailable")
	rs := NewReconciliationService(db, backend, time.Hour)

	indexed, _, err := rs.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, indexed)

	backend.indexErr = nil
	indexed, _, err = rs.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, indexed)
}
