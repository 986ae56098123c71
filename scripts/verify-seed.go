package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/zfogg/daybook/internal/database"
	"github.com/zfogg/daybook/internal/models"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	if err := database.Initialize(); err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()
	db := database.DB

	fmt.Println("🔍 Verifying seed data...")
	fmt.Println()

	var userCount, itemCount, commitmentCount, logCount, eventCount int64
	db.Model(&models.User{}).Count(&userCount)
	db.Model(&models.ProgressItem{}).Count(&itemCount)
	db.Model(&models.Commitment{}).Count(&commitmentCount)
	db.Model(&models.CommitmentLog{}).Count(&logCount)
	db.Model(&models.TimelineEvent{}).Count(&eventCount)

	fmt.Println("📊 Record Counts:")
	fmt.Printf("  Users:           %d\n", userCount)
	fmt.Printf("  Progress items:  %d\n", itemCount)
	fmt.Printf("  Commitments:     %d\n", commitmentCount)
	fmt.Printf("  Check-ins:       %d\n", logCount)
	fmt.Printf("  Timeline events: %d\n", eventCount)
	fmt.Println()

	var users []models.User
	db.Order("created_at").Limit(3).Find(&users)
	fmt.Println("📝 Sample Users:")
	for _, u := range users {
		var items, commitments int64
		db.Model(&models.ProgressItem{}).Where("user_id = ?", u.ID).Count(&items)
		db.Model(&models.Commitment{}).Where("user_id = ?", u.ID).Count(&commitments)
		fmt.Printf("    - %s (@%s, %s) - %d items, %d commitments\n", u.DisplayName, u.Username, u.Timezone, items, commitments)
	}
	fmt.Println()

	var quadrantRows []struct {
		Important bool
		Urgent    bool
		Count     int64
	}
	db.Model(&models.ProgressItem{}).
		Select("important, urgent, count(*) as count").
		Group("important, urgent").
		Scan(&quadrantRows)
	fmt.Println("  Matrix:")
	for _, r := range quadrantRows {
		fmt.Printf("    - %-10s %d\n", models.QuadrantFor(r.Important, r.Urgent), r.Count)
	}
	fmt.Println()

	fmt.Println("🔗 Relationship Verification:")
	var orphanLogs, crossUserLogs, danglingEvents int64
	db.Model(&models.CommitmentLog{}).
		Where("commitment_id NOT IN (?)", db.Model(&models.Commitment{}).Unscoped().Select("id")).
		Count(&orphanLogs)
	db.Model(&models.CommitmentLog{}).
		Joins("JOIN commitments ON commitments.id = commitment_logs.commitment_id").
		Where("commitments.user_id <> commitment_logs.user_id").
		Count(&crossUserLogs)
	db.Model(&models.TimelineEvent{}).
		Where("progress_item_id IS NOT NULL AND progress_item_id NOT IN (?)", db.Model(&models.ProgressItem{}).Unscoped().Select("id")).
		Count(&danglingEvents)
	report("Check-ins belong to a commitment", orphanLogs)
	report("Check-ins share their commitment's owner", crossUserLogs)
	report("Timeline events link to existing items", danglingEvents)
	fmt.Println()

	// Export sample IDs as JSON for API testing
	if len(os.Args) > 1 && os.Args[1] == "--json" && len(users) > 0 {
		sample := map[string]interface{}{
			"user_id":  users[0].ID,
			"email":    users[0].Email,
			"username": users[0].Username,
		}
		var item models.ProgressItem
		if db.Where("user_id = ?", users[0].ID).First(&item).Error == nil {
			sample["progress_item_id"] = item.ID
		}
		var commitment models.Commitment
		if db.Where("user_id = ?", users[0].ID).First(&commitment).Error == nil {
			sample["commitment_id"] = commitment.ID
		}
		jsonData, _ := json.MarshalIndent(sample, "", "  ")
		fmt.Println("📋 Sample IDs for API testing:")
		fmt.Println(string(jsonData))
	}

	fmt.Println("✅ Seed data verification complete!")
}

func report(check string, violations int64) {
	if violations == 0 {
		fmt.Printf("  ✅ %s\n", check)
		return
	}
	fmt.Printf("  ❌ %s (%d violations)\n", check, violations)
}
