package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config interface {
	EnvConfig
	CorsConfig
	PlatformConfig
	SecurityConfig
}

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
	GetBaseURL() string
}

type CorsConfig interface {
	GetAllowedOrigins() AllowedOrigins
	GetAllowedMethods() string
	GetAllowedHeaders() string
}

type PlatformConfig interface {
	GetSecretKey() string
	GetAPIURL() string
	GetUpstreamTimeout() time.Duration
	GetUpstreamMaxRetries() int64
	GetConnectCountry() string
	GetLocationDisplayName() string
	GetRedisURL() string
	GetRedisKeyPrefix() string
	GetLocationCacheTTL() time.Duration
	GetUseFakePlatform() bool
}

type mainConfig struct {
	EnvVars
	Cors
	Platform
	Security
}

// New returns the environment backed configuration. Values are read on every call
// so tests can use t.Setenv.
func New() Config {
	return mainConfig{}
}

// LoadDotEnv loads a .env file into the process environment when one exists.
// Variables already set in the environment win.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded, using process environment")
	}
}
