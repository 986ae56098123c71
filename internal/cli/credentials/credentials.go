package credentials

import (
	"os"
	"time"

	json "github.com/json-iterator/go"
	"github.com/zfogg/daybook/internal/cli/config"
)

// Credentials are the tokens of the signed-in account
type Credentials struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	ExpiresAt        time.Time `json:"expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
	UserID           string    `json:"user_id"`
	Username         string    `json:"username"`
	Email            string    `json:"email"`
	Timezone         string    `json:"timezone"`
}

// Load reads credentials from disk; nil, nil means signed out
func Load() (*Credentials, error) {
	data, err := os.ReadFile(config.GetCredentialsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var creds Credentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// Save writes credentials readable by the owner only
func Save(creds *Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(config.GetCredentialsPath(), data, 0600)
}

// Delete removes stored credentials. Deleting absent credentials is not an error.
func Delete() error {
	err := os.Remove(config.GetCredentialsPath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// IsExpired reports whether the access token has expired
func (c *Credentials) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}

// CanRefresh reports whether the refresh token is still usable
func (c *Credentials) CanRefresh() bool {
	return c.RefreshToken != "" && (c.RefreshExpiresAt.IsZero() || time.Now().Before(c.RefreshExpiresAt))
}
