// Package seed fills a database with plausible demo data through the same
// services the API uses, so seeded rows obey every domain rule.
package seed

import (
	"context"
	stderrors "errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/zfogg/daybook/internal/commitments"
	"github.com/zfogg/daybook/internal/dto"
	"github.com/zfogg/daybook/internal/logger"
	"github.com/zfogg/daybook/internal/models"
	"github.com/zfogg/daybook/internal/progress"
	"github.com/zfogg/daybook/internal/repository"
	"github.com/zfogg/daybook/internal/timeline"
	"github.com/zfogg/daybook/internal/util"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultPassword is the password of every seeded account
const DefaultPassword = "password123"

// seedEmailDomain marks seeded accounts so Clean can find them
const seedEmailDomain = "@example.com"

// Options sizes the data seeded for one user
type Options struct {
	ProgressItems int
	Commitments   int
	Events        int
	// Days of check-in history to backfill
	Days int
}

// DevOptions is a comfortably full account
func DevOptions() Options {
	return Options{ProgressItems: 24, Commitments: 5, Events: 30, Days: 60}
}

// TestOptions is a small account for e2e fixtures
func TestOptions() Options {
	return Options{ProgressItems: 6, Commitments: 2, Events: 5, Days: 14}
}

// Summary counts what a seeding run created
type Summary struct {
	Users          int `json:"users"`
	ProgressItems  int `json:"progress_items"`
	Commitments    int `json:"commitments"`
	CommitmentLogs int `json:"commitment_logs"`
	TimelineEvents int `json:"timeline_events"`
}

func (s *Summary) add(o Summary) {
	s.Users += o.Users
	s.ProgressItems += o.ProgressItems
	s.Commitments += o.Commitments
	s.CommitmentLogs += o.CommitmentLogs
	s.TimelineEvents += o.TimelineEvents
}

// Seeder handles database seeding operations
type Seeder struct {
	db          *gorm.DB
	faker       *gofakeit.Faker
	rng         *rand.Rand
	items       *progress.Service
	commitments *commitments.Service
	timeline    *timeline.Service
	now         func() time.Time
}

// NewSeeder creates a seeder. The same seed produces the same data.
func NewSeeder(db *gorm.DB, seed int64) *Seeder {
	return &Seeder{
		db:          db,
		faker:       gofakeit.New(uint64(seed)),
		rng:         rand.New(rand.NewSource(seed)),
		items:       progress.NewService(db, nil),
		commitments: commitments.NewService(db, nil),
		timeline:    timeline.NewService(db, nil),
		now:         time.Now,
	}
}

// SeedDev creates count random users, each with a full account
func (s *Seeder) SeedDev(ctx context.Context, count int) (Summary, error) {
	var total Summary
	for i := 0; i < count; i++ {
		user, err := s.createUser(ctx, s.uniqueUsername(ctx), s.faker.Name())
		if err != nil {
			return total, fmt.Errorf("failed to seed users: %w", err)
		}
		sum, err := s.SeedUser(ctx, user, DevOptions())
		if err != nil {
			return total, err
		}
		total.add(sum)
		total.Users++
	}
	logger.Log.Info("Seeded development data",
		zap.Int("users", total.Users),
		zap.Int("progress_items", total.ProgressItems),
		zap.Int("commitment_logs", total.CommitmentLogs),
	)
	return total, nil
}

// SeedTest creates the fixed fixture accounts; existing ones are left alone
func (s *Seeder) SeedTest(ctx context.Context) (Summary, error) {
	specs := []struct {
		username    string
		displayName string
	}{
		{"alice", "Alice Smith"},
		{"bob", "Bob Johnson"},
		{"charlie", "Charlie Brown"},
	}

	var total Summary
	for _, spec := range specs {
		var existing models.User
		err := s.db.WithContext(ctx).Where("username = ?", spec.username).First(&existing).Error
		if err == nil {
			continue
		}
		if !stderrors.Is(err, gorm.ErrRecordNotFound) {
			return total, err
		}

		user, err := s.createUser(ctx, spec.username, spec.displayName)
		if err != nil {
			return total, fmt.Errorf("failed to create test user %s: %w", spec.username, err)
		}
		sum, err := s.SeedUser(ctx, user, TestOptions())
		if err != nil {
			return total, err
		}
		total.add(sum)
		total.Users++
	}
	return total, nil
}

// SeedUser gives an existing user progress items, commitments with a check-in
// history and timeline events around today
func (s *Seeder) SeedUser(ctx context.Context, user *models.User, opts Options) (Summary, error) {
	var sum Summary
	loc, err := util.LoadLocation(user.Timezone)
	if err != nil {
		loc = time.UTC
	}
	today := s.now().In(loc)

	items := make([]*models.ProgressItem, 0, opts.ProgressItems)
	for i := 0; i < opts.ProgressItems; i++ {
		item, err := s.items.Create(ctx, user.ID, s.progressItem(today))
		if err != nil {
			return sum, fmt.Errorf("failed to seed progress item: %w", err)
		}
		items = append(items, item)
		sum.ProgressItems++
	}

	for i := 0; i < opts.Commitments; i++ {
		start := today.AddDate(0, 0, -opts.Days).Format(util.DateLayout)
		c, err := s.commitments.Create(ctx, user, dto.CreateCommitmentRequest{
			Title:     s.habitTitle(),
			Schedule:  s.schedule(),
			StartDate: &start,
			Color:     strPtr(s.faker.HexColor()),
		})
		if err != nil {
			return sum, fmt.Errorf("failed to seed commitment: %w", err)
		}
		sum.Commitments++

		// each habit gets its own follow-through rate
		rate := 0.4 + s.rng.Float64()*0.55
		for d := opts.Days; d >= 0; d-- {
			day := today.AddDate(0, 0, -d)
			if !c.IsScheduledOn(day) || s.rng.Float64() > rate {
				continue
			}
			note := ""
			if s.rng.Intn(4) == 0 {
				note = s.faker.HipsterSentence()
			}
			_, err := s.commitments.CheckIn(ctx, user, c.ID, dto.CheckInRequest{
				Date: day.Format(util.DateLayout),
				Note: note,
			})
			if err != nil {
				return sum, fmt.Errorf("failed to seed check-in: %w", err)
			}
			sum.CommitmentLogs++
		}
	}

	for i := 0; i < opts.Events; i++ {
		req := s.timelineEvent(today, loc)
		if len(items) > 0 && s.rng.Intn(3) == 0 {
			req.ProgressItemID = &items[s.rng.Intn(len(items))].ID
		}
		if _, err := s.timeline.Create(ctx, user, req); err != nil {
			return sum, fmt.Errorf("failed to seed timeline event: %w", err)
		}
		sum.TimelineEvents++
	}

	return sum, nil
}

// Clean removes every seeded account and everything it owns
func (s *Seeder) Clean(ctx context.Context) (int64, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("email LIKE ?", "%"+seedEmailDomain).
		Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		owned := []interface{}{
			&models.CommitmentLog{},
			&models.Commitment{},
			&models.TimelineEvent{},
			&models.ProgressItem{},
			&models.SyncOperation{},
			&models.RefreshToken{},
			&models.PasswordReset{},
		}
		for _, m := range owned {
			if err := tx.Unscoped().Where("user_id IN ?", ids).Delete(m).Error; err != nil {
				return err
			}
		}
		return tx.Unscoped().Where("id IN ?", ids).Delete(&models.User{}).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to clean seed data: %w", err)
	}
	return int64(len(ids)), nil
}

func (s *Seeder) createUser(ctx context.Context, username, displayName string) (*models.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	hashStr := string(hash)

	user := &models.User{
		Email:        strings.ToLower(username) + seedEmailDomain,
		Username:     username,
		DisplayName:  displayName,
		Timezone:     s.timezone(),
		PasswordHash: &hashStr,
	}
	if err := repository.NewUserRepository(s.db).CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Seeder) uniqueUsername(ctx context.Context) string {
	for {
		name := strings.ToLower(s.faker.Username())
		var n int64
		s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", name).Count(&n)
		if n == 0 {
			return name
		}
	}
}

var timezones = []string{"UTC", "America/New_York", "America/Los_Angeles", "Europe/Berlin", "Asia/Tokyo"}

func (s *Seeder) timezone() string {
	return timezones[s.rng.Intn(len(timezones))]
}

var verbs = []string{"Write", "Review", "Plan", "Fix", "Call", "Prepare", "Research", "Clean up", "Book", "Draft"}

func (s *Seeder) progressItem(today time.Time) dto.CreateProgressItemRequest {
	req := dto.CreateProgressItemRequest{
		Title:       fmt.Sprintf("%s %s", verbs[s.rng.Intn(len(verbs))], s.faker.BuzzWord()),
		Description: s.faker.HipsterSentence(),
		Important:   s.rng.Intn(2) == 0,
		Urgent:      s.rng.Intn(3) == 0,
	}

	switch r := s.rng.Intn(10); {
	case r < 2:
		req.Status = strPtr(string(models.StatusDone))
	case r < 5:
		req.Status = strPtr(string(models.StatusInProgress))
		req.Progress = intPtr(10 * (1 + s.rng.Intn(9)))
	}
	if s.rng.Intn(2) == 0 {
		due := today.AddDate(0, 0, s.rng.Intn(21)-5).Format(util.DateLayout)
		req.DueDate = &due
	}
	return req
}

var habits = []string{"Morning run", "Read 20 pages", "Meditate", "Practice guitar", "Journal", "Stretch", "No sugar", "Language lesson"}

func (s *Seeder) habitTitle() string {
	return habits[s.rng.Intn(len(habits))]
}

func (s *Seeder) schedule() []string {
	switch s.rng.Intn(3) {
	case 0:
		return []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}
	case 1:
		return []string{"mon", "tue", "wed", "thu", "fri"}
	default:
		return []string{"mon", "wed", "fri"}
	}
}

func (s *Seeder) timelineEvent(today time.Time, loc *time.Location) dto.CreateTimelineEventRequest {
	day := today.AddDate(0, 0, s.rng.Intn(29)-14)
	start := time.Date(day.Year(), day.Month(), day.Day(), 8+s.rng.Intn(10), 15*s.rng.Intn(4), 0, 0, loc)
	end := start.Add(time.Duration(30*(1+s.rng.Intn(4))) * time.Minute)

	req := dto.CreateTimelineEventRequest{
		Title:       eventTitle(s.faker.Word(), s.faker.City()),
		Description: s.faker.HipsterSentence(),
		StartsAt:    start,
		EndsAt:      &end,
	}
	if s.rng.Intn(2) == 0 {
		req.Location = s.faker.City()
	}
	if s.rng.Intn(8) == 0 {
		req.AllDay = true
		req.EndsAt = nil
	}
	return req
}

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }

func eventTitle(word, city string) string {
	if word == "" {
		return "Meeting in " + city
	}
	return fmt.Sprintf("%s in %s", strings.ToUpper(word[:1])+word[1:], city)
}
