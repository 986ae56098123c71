package credentials

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zfogg/daybook/internal/cli/config"
)

func TestSaveLoadDelete(t *testing.T) {
	require.NoError(t, config.Init(filepath.Join(t.TempDir(), "config.toml")))

	creds, err := Load()
	require.NoError(t, err)
	assert.Nil(t, creds)

	saved := &Credentials{
		AccessToken:      "access",
		RefreshToken:     "refresh",
		ExpiresAt:        time.Now().Add(time.Minute).UTC().Truncate(time.Second),
		RefreshExpiresAt: time.Now().Add(time.Hour).UTC().Truncate(time.Second),
		Email:            "alice@example.com",
		Timezone:         "Europe/Berlin",
	}
	require.NoError(t, Save(saved))

	info, err := os.Stat(config.GetCredentialsPath())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	creds, err = Load()
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, saved.AccessToken, creds.AccessToken)
	assert.True(t, saved.ExpiresAt.Equal(creds.ExpiresAt))
	assert.False(t, creds.IsExpired())
	assert.True(t, creds.CanRefresh())

	require.NoError(t, Delete())
	require.NoError(t, Delete())
	creds, err = Load()
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestCanRefresh(t *testing.T) {
	assert.False(t, (&Credentials{}).CanRefresh())
	assert.True(t, (&Credentials{RefreshToken: "r"}).CanRefresh())
	assert.False(t, (&Credentials{RefreshToken: "r", RefreshExpiresAt: time.Now().Add(-time.Minute)}).CanRefresh())
}
