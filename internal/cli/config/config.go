package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

var configDir string
var configFilePath string
var credentialsPath string

// getConfigDir returns the platform config directory for the CLI
func getConfigDir() (string, error) {
	if runtime.GOOS == "windows" {
		// %LOCALAPPDATA%\daybook
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = os.Getenv("APPDATA")
		}
		if appData == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			appData = home
		}
		return filepath.Join(appData, "daybook"), nil
	}

	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "daybook"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "daybook"), nil
}

// Init loads config.toml from configPath, or from the default directory when empty
func Init(configPath string) error {
	var err error
	if configPath != "" {
		configDir = filepath.Dir(configPath)
		configFilePath = configPath
	} else {
		configDir, err = getConfigDir()
		if err != nil {
			return err
		}
		configFilePath = filepath.Join(configDir, "config.toml")
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return err
	}
	credentialsPath = filepath.Join(configDir, "credentials.json")

	viper.Reset()
	viper.SetConfigType("toml")
	viper.SetEnvPrefix("DAYBOOK")
	viper.AutomaticEnv()
	setDefaults()

	viper.SetConfigFile(configFilePath)
	if err := viper.ReadInConfig(); err != nil {
		// a missing file is fine, a malformed one is not
		if _, statErr := os.Stat(configFilePath); statErr == nil {
			return err
		}
	}
	return nil
}

func setDefaults() {
	viper.SetDefault("api.base_url", "http://localhost:8787")
	viper.SetDefault("api.timeout", 30)
	viper.SetDefault("output.format", "text")
	viper.SetDefault("log.file", filepath.Join(configDir, "daybook-cli.log"))
}

// expandPath expands a leading ~ to the home directory
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// GetString returns a string configuration value
func GetString(key string) string {
	value := viper.GetString(key)
	if key == "log.file" {
		return expandPath(value)
	}
	return value
}

// GetInt returns an int configuration value
func GetInt(key string) int {
	return viper.GetInt(key)
}

// Timeout is api.timeout in seconds as a duration
func Timeout() time.Duration {
	return time.Duration(GetInt("api.timeout")) * time.Second
}

// Set overrides a value for this run only
func Set(key string, value interface{}) {
	viper.Set(key, value)
}

// SetString sets a value and persists the config file
func SetString(key string, value string) error {
	viper.Set(key, value)
	return viper.WriteConfigAs(configFilePath)
}

// GetConfigFile returns the path of the user config file
func GetConfigFile() string {
	return configFilePath
}

// GetCredentialsPath returns the path to the stored tokens
func GetCredentialsPath() string {
	return credentialsPath
}
