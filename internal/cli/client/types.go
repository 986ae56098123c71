package client

import (
	"time"

	"github.com/zfogg/daybook/internal/dto"
	"github.com/zfogg/daybook/internal/models"
)

// TokenPair mirrors the server's token response
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// AuthResult is returned by login and refresh
type AuthResult struct {
	User   *dto.UserResponse `json:"user"`
	Tokens *TokenPair        `json:"tokens"`
}

// PageMeta is the pagination block of list responses
type PageMeta struct {
	Limit   int   `json:"limit"`
	Offset  int   `json:"offset"`
	Count   int   `json:"count"`
	Total   int64 `json:"total"`
	HasMore bool  `json:"has_more"`
}

// DayStatus is one commitment on the dashboard
type DayStatus struct {
	Commitment models.Commitment `json:"commitment"`
	Scheduled  bool              `json:"scheduled"`
	Completed  bool              `json:"completed"`
	Streak     int               `json:"streak"`
}

// Dashboard is the aggregated view of one day
type Dashboard struct {
	Date        string                 `json:"date"`
	Timezone    string                 `json:"timezone"`
	Events      []models.TimelineEvent `json:"events"`
	Commitments []DayStatus            `json:"commitments"`
	Progress    struct {
		Quadrants map[models.Quadrant][]models.ProgressItem `json:"quadrants"`
		Counts    map[models.Quadrant]int                   `json:"counts"`
		Overdue   []models.ProgressItem                     `json:"overdue"`
		DueToday  []models.ProgressItem                     `json:"due_today"`
	} `json:"progress"`
	Summary struct {
		Events               int `json:"events"`
		CommitmentsScheduled int `json:"commitments_scheduled"`
		CommitmentsCompleted int `json:"commitments_completed"`
		OpenItems            int `json:"open_items"`
		CompletedToday       int `json:"completed_today"`
	} `json:"summary"`
}

// ItemFilter narrows ListItems
type ItemFilter struct {
	Status   string
	Quadrant string
	Query    string
	Limit    int
	Offset   int
}
