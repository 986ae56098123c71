package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/zfogg/daybook/internal/database"
	"github.com/zfogg/daybook/internal/repository"
	"github.com/zfogg/daybook/internal/seed"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	command := "dev"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	count := fs.Int("count", 10, "number of demo users (dev)")
	email := fs.String("email", "", "existing user to fill with demo data (user)")
	rngSeed := fs.Int64("seed", time.Now().UnixNano(), "random seed, for reproducible data")
	days := fs.Int("days", 0, "days of check-in history (user); 0 keeps the default")
	if len(os.Args) > 2 {
		_ = fs.Parse(os.Args[2:])
	}

	switch command {
	case "dev", "test", "user", "clean":
	default:
		fmt.Println("Usage: seed [dev|test|user|clean] [flags]")
		fmt.Println("  dev   - Seed development database with -count demo users")
		fmt.Println("  test  - Seed the fixed alice/bob/charlie accounts")
		fmt.Println("  user  - Add demo data to the account given by -email")
		fmt.Println("  clean - Remove all seed data (use with caution)")
		os.Exit(1)
	}

	log.Println("🌱 Connecting to database...")
	if err := database.Initialize(); err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()
	if err := database.Migrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	ctx := context.Background()
	seeder := seed.NewSeeder(database.DB, *rngSeed)

	var (
		summary seed.Summary
		err     error
	)
	switch command {
	case "dev":
		summary, err = seeder.SeedDev(ctx, *count)
	case "test":
		summary, err = seeder.SeedTest(ctx)
	case "user":
		summary, err = seedUser(ctx, seeder, *email, *days)
	case "clean":
		removed, cerr := seeder.Clean(ctx)
		if cerr != nil {
			log.Fatalf("❌ Clean failed: %v", cerr)
		}
		log.Printf("🧹 Removed %d seeded users and their data", removed)
		return
	}
	if err != nil {
		log.Fatalf("❌ Seeding failed: %v", err)
	}

	log.Println("✅ Seeding complete")
	log.Printf("   users:           %d", summary.Users)
	log.Printf("   progress items:  %d", summary.ProgressItems)
	log.Printf("   commitments:     %d", summary.Commitments)
	log.Printf("   check-ins:       %d", summary.CommitmentLogs)
	log.Printf("   timeline events: %d", summary.TimelineEvents)
	if command != "user" {
		log.Printf("   password for every seeded account: %s", seed.DefaultPassword)
	}
}

func seedUser(ctx context.Context, seeder *seed.Seeder, email string, days int) (seed.Summary, error) {
	if email == "" {
		return seed.Summary{}, fmt.Errorf("-email is required")
	}
	user, err := repository.NewUserRepository(database.DB).GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return seed.Summary{}, fmt.Errorf("user %s: %w", email, err)
	}

	opts := seed.DevOptions()
	if days > 0 {
		opts.Days = days
	}
	return seeder.SeedUser(ctx, user, opts)
}
