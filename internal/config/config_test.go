package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"REDIS_URL":              "redis://localhost:6379/0",
		"JWT_SECRET":             "secret",
		"PUBLIC_BASE_URL":        "https://shop.example.com/",
		"WENJOY_API_KEY":         "pub",
		"WENJOY_PRIVATE_API_KEY": "priv",
		"DATABASE_URL":           "",
		"WENJOY_STATE":           "",
		"WENJOY_REPLAY_TTL":      "",
		"CHECKOUT_RATE_LIMIT":    "",
		"PORT":                   "",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	require.NoError(t, err)
	require.Equal(t, "https://shop.example.com", cfg.PublicBaseURL)
	require.Equal(t, 24*time.Hour, cfg.WenjoyReplayTTL)
	require.Equal(t, "60-M", cfg.CheckoutRateLimit)
	require.Equal(t, ":8080", cfg.HTTPAddr())
	require.Empty(t, cfg.DatabaseURL)

	acq := cfg.Acquirer()
	require.Equal(t, "wenjoy", acq.ID)
	require.Equal(t, "test", acq.Environment())
	require.Equal(t, "https://shop.example.com/payment/wenjoy/response", acq.CallbackURL())
}

func TestLoadEnabledAcquirerUsesProd(t *testing.T) {
	env := baseEnv()
	env["WENJOY_STATE"] = "enabled"
	cfg, err := LoadForTests(env)
	require.NoError(t, err)
	require.Equal(t, "prod", cfg.Acquirer().Environment())
}

func TestLoadRequiresKeys(t *testing.T) {
	for _, key := range []string{"REDIS_URL", "JWT_SECRET", "PUBLIC_BASE_URL", "WENJOY_API_KEY", "WENJOY_PRIVATE_API_KEY"} {
		env := baseEnv()
		env[key] = ""
		_, err := LoadForTests(env)
		require.Error(t, err, key)
	}
}

func TestLoadRejectsSeparatorInKeys(t *testing.T) {
	env := baseEnv()
	env["WENJOY_PRIVATE_API_KEY"] = "a~b"
	_, err := LoadForTests(env)
	require.Error(t, err)
}

func TestParseHelpers(t *testing.T) {
	require.True(t, parseBoolDefault("", true))
	require.False(t, parseBoolDefault("off", true))
	require.Equal(t, int64(7), parseInt64("7", 1))
	require.Equal(t, int64(1), parseInt64("x", 1))
	require.Equal(t, 5*time.Second, parseDuration("bogus", "5s"))
	require.Equal(t, []string{"a", "b"}, splitAndTrim(" a, ,b "))
}
