package search

import (
	"context"
	"time"

	"github.com/zfogg/daybook/internal/events"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/models"
	"go.uber.org/zap"
)

const indexTimeout = 5 * time.Second

// Indexer keeps the index in step with published changes
type Indexer struct {
	backend Backend
	async   bool
}

// NewIndexer creates an indexer that writes to the backend off the request path
func NewIndexer(backend Backend) *Indexer {
	return &Indexer{backend: backend, async: true}
}

// OnChange implements events.Listener
func (ix *Indexer) OnChange(ctx context.Context, change events.Change) {
	if ix.backend == nil {
		return
	}

	var op func(context.Context) error
	switch change.Entity {
	case models.EntityProgressItem:
		if change.Action == models.ActionDelete {
			op = func(ctx context.Context) error {
				return ix.backend.DeleteDocument(ctx, TypeProgressItem, change.EntityID)
			}
		} else if item, ok := change.Object.(*models.ProgressItem); ok && item != nil {
			doc := ProgressItemToDocument(item)
			op = func(ctx context.Context) error { return ix.backend.IndexDocument(ctx, doc) }
		}
	case models.EntityTimelineEvent:
		if change.Action == models.ActionDelete {
			op = func(ctx context.Context) error {
				return ix.backend.DeleteDocument(ctx, TypeTimelineEvent, change.EntityID)
			}
		} else if e, ok := change.Object.(*models.TimelineEvent); ok && e != nil {
			doc := TimelineEventToDocument(e)
			op = func(ctx context.Context) error { return ix.backend.IndexDocument(ctx, doc) }
		}
	}
	if op == nil {
		return
	}

	run := func() {
		ctx, cancel := context.WithTimeout(context.Background(), indexTimeout)
		defer cancel()
		if err := op(ctx); err != nil {
			logger.Log.Warn("Failed to sync search index",
				logger.WithUserID(change.UserID),
				logger.WithEntity(change.Entity, change.EntityID),
				zap.String("action", change.Action),
				zap.Error(err),
			)
		}
	}
	if ix.async {
		go run()
		return
	}
	run()
}
