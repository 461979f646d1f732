package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	apiURLEnvVar   = "PDF_API_URL"
	appNameVar     = "APP_NAME"
	folderEnvVar   = "FOLDER"
	logLevelEnvVar = "LOG_LEVEL"

	credentialFileName = "credentials.json"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

// GetAPIURL returns the base URL of the PDF backend without a trailing slash.
func (EnvVars) GetAPIURL() string {
	return strings.TrimRight(GetEnv(apiURLEnvVar, "http://localhost:8000"), "/")
}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "PDF Tools")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

func (e EnvVars) GetCredentialFile() string {
	return filepath.Join(e.GetDataFolder(), credentialFileName)
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelEnvVar, "info")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetDurationEnv parses envVar with time.ParseDuration, falling back to
// defaultValue when it is unset, malformed or not positive.
func GetDurationEnv(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
