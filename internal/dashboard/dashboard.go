// Package dashboard assembles the one-day overview of events, commitments and
// open progress items, caching the result per user and day.
package dashboard

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/zfogg/daybook/internal/cache"
	"github.com/zfogg/daybook/internal/commitments"
	"github.com/zfogg/daybook/internal/errors"
	"github.com/zfogg/daybook/internal/events"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/metrics"
	"github.com/zfogg/daybook/internal/models"
	"github.com/zfogg/daybook/internal/progress"
	"github.com/zfogg/daybook/internal/repository"
	"github.com/zfogg/daybook/internal/telemetry"
	"github.com/zfogg/daybook/internal/timeline"
	"github.com/zfogg/daybook/internal/util"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DefaultTTL is how long a built dashboard is served from cache
const DefaultTTL = 60 * time.Second

const dashboardCache = "dashboard"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrInvalidDate = errors.ValidationError("date", "date must be YYYY-MM-DD")

// Dashboard is the overview of one calendar day
type Dashboard struct {
	Date        string                  `json:"date"`
	Timezone    string                  `json:"timezone"`
	Events      []models.TimelineEvent  `json:"events"`
	Commitments []commitments.DayStatus `json:"commitments"`
	Progress    ProgressSummary         `json:"progress"`
	Summary     Summary                 `json:"summary"`
}

// ProgressSummary groups open items by quadrant and calls out deadlines
type ProgressSummary struct {
	Quadrants map[models.Quadrant][]models.ProgressItem `json:"quadrants"`
	Counts    map[models.Quadrant]int                   `json:"counts"`
	Overdue   []models.ProgressItem                     `json:"overdue"`
	DueToday  []models.ProgressItem                     `json:"due_today"`
}

// Summary holds the headline numbers
type Summary struct {
	Events               int `json:"events"`
	CommitmentsScheduled int `json:"commitments_scheduled"`
	CommitmentsCompleted int `json:"commitments_completed"`
	OpenItems            int `json:"open_items"`
	CompletedToday       int `json:"completed_today"`
}

// Service builds dashboards
type Service struct {
	items       repository.ProgressRepository
	commitments *commitments.Service
	timeline    *timeline.Service
	cache       cache.Store
	ttl         time.Duration
	now         func() time.Time
}

// NewService creates a dashboard service. store may be nil to disable caching.
func NewService(db *gorm.DB, store cache.Store) *Service {
	return &Service{
		items:       repository.NewProgressRepository(db),
		commitments: commitments.NewService(db, nil),
		timeline:    timeline.NewService(db, nil),
		cache:       store,
		ttl:         DefaultTTL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the dashboard for date ("" means the user's today), from cache when fresh
func (s *Service) Get(ctx context.Context, user *models.User, date string) (*Dashboard, error) {
	tz := user.Timezone
	if tz == "" {
		tz = "UTC"
	}
	if date == "" {
		date = util.TodayIn(tz, s.now())
	}
	if !util.IsDate(date) {
		return nil, ErrInvalidDate
	}

	start := time.Now()
	key := s.key(ctx, user.ID, date, tz)
	if d, ok := s.fromCache(ctx, key); ok {
		metrics.RecordDashboardBuild("cache", time.Since(start))
		return d, nil
	}

	d, err := s.Build(ctx, user, date)
	if err != nil {
		return nil, err
	}
	metrics.RecordDashboardBuild("database", time.Since(start))

	if key != "" {
		if payload, err := json.Marshal(d); err == nil {
			if err := s.cache.SetEx(ctx, key, string(payload), s.ttl); err != nil {
				logger.Log.Debug("Dashboard cache write failed", zap.Error(err))
			}
		}
	}
	return d, nil
}

// Build assembles the dashboard without consulting the cache
func (s *Service) Build(ctx context.Context, user *models.User, date string) (_ *Dashboard, err error) {
	ctx, span := telemetry.Start(ctx, "dashboard.build",
		attribute.String("user.id", user.ID),
		attribute.String("query.date", date),
	)
	defer func() { telemetry.End(span, err) }()

	tz := user.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := util.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}
	dayStart, dayEnd, err := util.LocalDayBounds(date, loc)
	if err != nil {
		return nil, ErrInvalidDate
	}

	evs, err := s.timeline.Range(ctx, user.ID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	days, err := s.commitments.Day(ctx, user, date)
	if err != nil {
		return nil, fmt.Errorf("failed to load commitments: %w", err)
	}
	open, err := s.items.ListOpen(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress items: %w", err)
	}
	completedToday, err := s.items.CountCompletedBetween(ctx, user.ID, dayStart.UTC(), dayEnd.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to count completions: %w", err)
	}

	d := &Dashboard{
		Date:        date,
		Timezone:    tz,
		Events:      evs,
		Commitments: days,
		Progress:    summarise(open, date),
	}
	d.Summary.Events = len(evs)
	d.Summary.OpenItems = len(open)
	d.Summary.CompletedToday = int(completedToday)
	for _, c := range days {
		if c.Scheduled {
			d.Summary.CommitmentsScheduled++
			if c.Completed {
				d.Summary.CommitmentsCompleted++
			}
		}
	}
	return d, nil
}

// summarise places open items into quadrants and picks out overdue and due-today ones
func summarise(open []models.ProgressItem, date string) ProgressSummary {
	p := ProgressSummary{
		Quadrants: progress.GroupByQuadrant(open),
		Counts:    make(map[models.Quadrant]int, len(models.Quadrants)),
		Overdue:   []models.ProgressItem{},
		DueToday:  []models.ProgressItem{},
	}
	for q, items := range p.Quadrants {
		p.Counts[q] = len(items)
	}
	for _, item := range open {
		if item.DueDate == nil {
			continue
		}
		switch {
		case item.IsOverdue(date):
			p.Overdue = append(p.Overdue, item)
		case *item.DueDate == date:
			p.DueToday = append(p.DueToday, item)
		}
	}
	return p
}

// Invalidate drops every cached dashboard of the user by bumping their version
func (s *Service) Invalidate(ctx context.Context, userID string) {
	if s.cache == nil || userID == "" {
		return
	}
	if _, err := s.cache.Incr(ctx, versionKey(userID)); err != nil {
		logger.Log.Warn("Failed to invalidate dashboard cache",
			logger.WithUserID(userID),
			zap.Error(err),
		)
	}
}

// OnChange implements events.Listener
func (s *Service) OnChange(ctx context.Context, change events.Change) {
	s.Invalidate(ctx, change.UserID)
}

func (s *Service) key(ctx context.Context, userID, date, tz string) string {
	if s.cache == nil {
		return ""
	}
	version, err := s.cache.Get(ctx, versionKey(userID))
	if err != nil {
		if !stderrors.Is(err, cache.ErrMiss) {
			logger.Log.Debug("Dashboard cache unavailable", zap.Error(err))
			return ""
		}
		version = "0"
	}
	return fmt.Sprintf("dashboard:%s:%s:%s:%s", userID, version, date, tz)
}

func (s *Service) fromCache(ctx context.Context, key string) (*Dashboard, bool) {
	if key == "" {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		metrics.RecordCacheLookup(dashboardCache, false)
		return nil, false
	}
	var d Dashboard
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		logger.Log.Warn("Discarding unreadable dashboard cache entry", zap.Error(err))
		metrics.RecordCacheLookup(dashboardCache, false)
		return nil, false
	}
	metrics.RecordCacheLookup(dashboardCache, true)
	return &d, true
}

func versionKey(userID string) string {
	return "dashboard:version:" + userID
}
