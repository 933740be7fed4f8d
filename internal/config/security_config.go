package config

import "time"

type SecurityConfig interface {
	GetSessionSigningKey() string
	GetSessionTokenExpiry() time.Duration
	GetRequireSession() bool
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetSessionSigningKey is the HS256 key used to verify merchant session tokens.
func (Security) GetSessionSigningKey() string {
	return GetEnv("SESSION_SIGNING_KEY", "")
}

func (Security) GetSessionTokenExpiry() time.Duration {
	return GetEnvDuration("SESSION_TOKEN_EXPIRY", 1*time.Hour)
}

// GetRequireSession is true once a signing key is configured.
func (s Security) GetRequireSession() bool {
	return s.GetSessionSigningKey() != ""
}
