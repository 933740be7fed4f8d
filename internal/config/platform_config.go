package config

import "time"

const (
	secretKeyVar = "STRIPE_TEST_SECRET_KEY"
	apiURLVar    = "STRIPE_API_URL"
)

type Platform struct{}

var _ PlatformConfig = Platform{}

// GetSecretKey returns the service credential. Empty means not configured.
func (Platform) GetSecretKey() string {
	return GetEnv(secretKeyVar, "")
}

// GetAPIURL overrides the upstream base URL (stripe-mock, tests). Empty uses the SDK default.
func (Platform) GetAPIURL() string {
	return GetEnv(apiURLVar, "")
}

func (Platform) GetUpstreamTimeout() time.Duration {
	return GetEnvDuration("UPSTREAM_TIMEOUT", 20*time.Second)
}

// GetUpstreamMaxRetries bounds network level retries. Upstream 4xx rejections are not retried.
func (Platform) GetUpstreamMaxRetries() int64 {
	return GetEnvInt("UPSTREAM_MAX_RETRIES", 1)
}

func (Platform) GetConnectCountry() string {
	return GetEnv("CONNECT_COUNTRY", "JM")
}

func (Platform) GetLocationDisplayName() string {
	return GetEnv("LOCATION_DISPLAY_NAME", "PhoneTap Test Location")
}

func (Platform) GetRedisURL() string {
	return GetEnv("REDIS_URL", "")
}

// GetRedisKeyPrefix namespaces the location keys when deployments share a redis.
func (Platform) GetRedisKeyPrefix() string {
	return GetEnv("REDIS_KEY_PREFIX", "phonetap:terminal:location:")
}

func (Platform) GetLocationCacheTTL() time.Duration {
	return GetEnvDuration("LOCATION_CACHE_TTL", 24*time.Hour)
}

// GetUseFakePlatform swaps the payment platform for an in-memory one (offline development).
func (Platform) GetUseFakePlatform() bool {
	return GetEnvBool("FAKE_PLATFORM", false)
}
