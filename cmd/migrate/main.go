package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/zfogg/daybook/internal/database"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	switch command {
	case "up":
		runMigrationsUp()
	case "status":
		checkConnection()
	default:
		fmt.Println("Usage: migrate [up|status]")
		fmt.Println("  up     - Create or update every table and index")
		fmt.Println("  status - Check that the database is reachable")
		os.Exit(1)
	}
}

func runMigrationsUp() {
	log.Println("🔄 Connecting to database...")

	if err := database.Initialize(); err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()

	log.Println("✅ Database connected")
	log.Println("📈 Running migrations...")

	if err := database.Migrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	log.Println("✅ All migrations completed successfully!")
}

func checkConnection() {
	if err := database.Initialize(); err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := database.Health(); err != nil {
		log.Fatalf("❌ Database unhealthy: %v", err)
	}
	log.Println("✅ Database reachable")
}
