package config_test

import (
	"testing"
	"time"

	"github.com/phonetap/phonetap-server/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	for _, v := range []string{"PORT", "BASE_URL", "NEXTAUTH_URL", "STRIPE_TEST_SECRET_KEY", "UPSTREAM_TIMEOUT", "UPSTREAM_MAX_RETRIES", "SESSION_SIGNING_KEY", "ALLOWED_ORIGINS", "REDIS_KEY_PREFIX"} {
		t.Setenv(v, "")
	}
	c := config.New()

	require.Equal(t, ":3000", c.GetPort())
	require.Equal(t, "http://localhost:3000", c.GetBaseURL())
	require.Equal(t, "", c.GetSecretKey())
	require.Equal(t, 20*time.Second, c.GetUpstreamTimeout())
	require.Equal(t, int64(1), c.GetUpstreamMaxRetries())
	require.Equal(t, "JM", c.GetConnectCountry())
	require.False(t, c.GetRequireSession())
	require.True(t, c.GetAllowedOrigins().IsAllowedOrigin("*"))
	require.Equal(t, "phonetap:terminal:location:", c.GetRedisKeyPrefix())
}

func TestOverrides(t *testing.T) {
	t.Setenv("PORT", ":9090")
	t.Setenv("NEXTAUTH_URL", "https://tap.example.com/")
	t.Setenv("UPSTREAM_TIMEOUT", "5s")
	t.Setenv("UPSTREAM_MAX_RETRIES", "not-a-number")
	t.Setenv("SESSION_SIGNING_KEY", "k")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	c := config.New()

	require.Equal(t, ":9090", c.GetPort())
	require.Equal(t, "https://tap.example.com", c.GetBaseURL())
	require.Equal(t, 5*time.Second, c.GetUpstreamTimeout())
	require.Equal(t, int64(1), c.GetUpstreamMaxRetries())
	require.True(t, c.GetRequireSession())

	origins := c.GetAllowedOrigins()
	require.True(t, origins.IsAllowedOrigin("https://b.example.com"))
	require.False(t, origins.IsAllowedOrigin("*"))
}

func TestBaseURLPrefersBaseURL(t *testing.T) {
	t.Setenv("BASE_URL", "https://primary.example.com")
	t.Setenv("NEXTAUTH_URL", "https://fallback.example.com")

	require.Equal(t, "https://primary.example.com", config.New().GetBaseURL())
}

func TestAllowOrigin(t *testing.T) {
	origins := config.AllowedOrigins{"https://a.example.com": {}}
	value, creds, ok := origins.AllowOrigin("https://a.example.com")
	require.True(t, ok)
	require.True(t, creds)
	require.Equal(t, "https://a.example.com", value)

	_, _, ok = origins.AllowOrigin("https://b.example.com")
	require.False(t, ok)

	origins["*"] = struct{}{}
	value, creds, ok = origins.AllowOrigin("https://b.example.com")
	require.True(t, ok)
	require.False(t, creds)
	require.Equal(t, "*", value)
	require.Equal(t, "*, https://a.example.com", origins.String())
}
