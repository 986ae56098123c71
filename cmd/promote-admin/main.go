package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/zfogg/daybook/internal/database"
	"github.com/zfogg/daybook/internal/repository"
)

func main() {
	// Load environment variables
	_ = godotenv.Load()

	email := flag.String("email", "", "Email address of user to promote to admin")
	revoke := flag.Bool("revoke", false, "Revoke admin privileges instead of granting")
	flag.Parse()

	// promote-admin user@example.com works as well as -email
	if *email == "" && flag.NArg() > 0 {
		*email = flag.Arg(0)
	}
	if *email == "" {
		fmt.Println("Usage: promote-admin [-revoke] -email=user@example.com")
		fmt.Println("       promote-admin [-revoke] user@example.com")
		os.Exit(2)
	}

	if err := database.Initialize(); err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	users := repository.NewUserRepository(database.DB)

	user, err := users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(*email)))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			fmt.Printf("❌ User not found: %s\n", *email)
			os.Exit(1)
		}
		log.Fatalf("❌ Failed to look up user: %v", err)
	}

	grant := !*revoke
	if user.IsAdmin == grant {
		if grant {
			fmt.Printf("⚠️  User %s is already an admin\n", user.Username)
		} else {
			fmt.Printf("⚠️  User %s is not an admin\n", user.Username)
		}
		return
	}

	if _, err := users.SetAdmin(ctx, user.Email, grant); err != nil {
		log.Fatalf("❌ Failed to update admin privileges: %v", err)
	}

	if grant {
		fmt.Printf("✓ Admin privileges granted to %s (%s)\n", user.Username, user.Email)
		fmt.Printf("  User ID: %s\n", user.ID)
	} else {
		fmt.Printf("✓ Admin privileges revoked for %s (%s)\n", user.Username, user.Email)
	}
	// the auth middleware reloads the user on every request
	fmt.Println("  The change applies to the user's next request")
}
