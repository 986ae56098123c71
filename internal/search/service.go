// Package search finds a user's progress items and timeline events, through
// Elasticsearch when it is configured and plain SQL otherwise.
package search

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/zfogg/daybook/internal/errors"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/metrics"
	"github.com/zfogg/daybook/internal/repository"
	"github.com/zfogg/daybook/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	DefaultLimit = 20
	MaxLimit     = 50

	snippetRadius = 60
)

var ErrEmptyQuery = errors.ValidationError("q", "search query is required")

// Backend is the index operations the service and indexer need. *Client implements it.
type Backend interface {
	IndexDocument(ctx context.Context, doc Document) error
	DeleteDocument(ctx context.Context, docType, id string) error
	Search(ctx context.Context, userID, query string, limit int) ([]Hit, error)
}

// Result is one search match
type Result struct {
	Type    string  `json:"type"`
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Service answers search queries
type Service struct {
	backend Backend
	items   repository.ProgressRepository
	events  repository.TimelineRepository
}

// NewService creates a search service. backend may be nil for SQL-only search;
// pass an untyped nil rather than a nil *Client.
func NewService(db *gorm.DB, backend Backend) *Service {
	return &Service{
		backend: backend,
		items:   repository.NewProgressRepository(db),
		events:  repository.NewTimelineRepository(db),
	}
}

// Search returns the user's entries matching q, best first
func (s *Service) Search(ctx context.Context, userID, q string, limit int) ([]Result, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	ctx, span := telemetry.Start(ctx, "search.query", attribute.Int("search.limit", limit))
	defer span.End()

	if s.backend != nil {
		hits, err := s.backend.Search(ctx, userID, q, limit)
		if err == nil {
			metrics.RecordSearch("elasticsearch", "success")
			return fromHits(hits, q), nil
		}
		metrics.RecordSearch("elasticsearch", "error")
		span.SetAttributes(attribute.Bool("search.fallback", true))
		logger.Log.Warn("Elasticsearch search failed, falling back to SQL",
			logger.WithUserID(userID),
			zap.Error(err),
		)
	}

	results, err := s.searchSQL(ctx, userID, q, limit)
	if err != nil {
		metrics.RecordSearch("sql", "error")
		return nil, err
	}
	metrics.RecordSearch("sql", "success")
	return results, nil
}

func fromHits(hits []Hit, q string) []Result {
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		snip := h.Highlight
		if snip == "" {
			snip = Snippet(h.Document.Description, q)
		}
		results = append(results, Result{
			Type:    h.Document.Type,
			ID:      h.Document.ID,
			Title:   h.Document.Title,
			Snippet: snip,
			Score:   h.Score,
		})
	}
	return results
}

func (s *Service) searchSQL(ctx context.Context, userID, q string, limit int) ([]Result, error) {
	items, err := s.items.Search(ctx, userID, q, limit)
	if err != nil {
		return nil, err
	}
	evs, err := s.events.Search(ctx, userID, q, limit)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(items)+len(evs))
	for _, item := range items {
		results = append(results, Result{
			Type:    TypeProgressItem,
			ID:      item.ID,
			Title:   item.Title,
			Snippet: Snippet(item.Description, q),
			Score:   score(item.Title, q),
		})
	}
	for _, e := range evs {
		results = append(results, Result{
			Type:    TypeTimelineEvent,
			ID:      e.ID,
			Title:   e.Title,
			Snippet: Snippet(e.Description, q),
			Score:   score(e.Title, q),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return strings.ToLower(results[i].Title) < strings.ToLower(results[j].Title)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// score ranks title matches above description-only matches
func score(title, q string) float64 {
	t, lq := strings.ToLower(title), strings.ToLower(q)
	switch {
	case t == lq:
		return 3
	case strings.Contains(t, lq):
		return 2
	default:
		return 1
	}
}

// Snippet cuts the part of text around the first occurrence of q. Text without
// a match yields its beginning.
func Snippet(text, q string) string {
	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}
	idx := strings.Index(strings.ToLower(text), strings.ToLower(q))
	if idx < 0 || idx > len(text) {
		idx = 0
	}

	start := idx - snippetRadius
	if start < 0 {
		start = 0
	}
	end := idx + len(q) + snippetRadius
	if end > len(text) {
		end = len(text)
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}

	out := text[start:end]
	if start > 0 {
		out = "..." + out
	}
	if end < len(text) {
		out += "..."
	}
	return out
}
