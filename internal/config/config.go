package config

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config interface {
	EnvConfig
	SessionConfig
	SecurityConfig
}

type EnvConfig interface {
	GetAPIURL() string
	GetAppName() string
	GetDataFolder() string
	GetCredentialFile() string
	GetLogLevel() string
	GetEnv() string
}

type mainConfig struct {
	EnvVars
	Session
	Security
}

func New() Config {
	return mainConfig{}
}

// Load reads the given dotenv files (".env" when none are named) into the
// process environment before returning the config. Missing files are ignored;
// variables already set in the environment win.
func Load(files ...string) Config {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Warn().Err(err).Msg("failed to load dotenv file")
	}
	return New()
}
