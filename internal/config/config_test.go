package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"APP_ENV", "PORT", "MONGODB_URI", "MONGODB_DATABASE", "STRIPE_SECRET_KEY",
		"PAYMENT_CURRENCY", "JWT_SECRET", "JWT_TTL", "FRONTEND_URL", "REDIS_ADDR",
		"CACHE_TTL", "RATE_LIMIT_MAX", "RATE_LIMIT_WINDOW", "PENDING_ORDER_TTL", "SWEEP_INTERVAL",
	} {
		t.Setenv(k, "")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, ":5000", cfg.Addr())
	assert.Equal(t, "isaks-store", cfg.MongoDatabase)
	assert.Equal(t, "usd", cfg.Currency)
	assert.Equal(t, devJWTSecret, cfg.JWTSecret)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTTTL)
	assert.Equal(t, 100, cfg.RateLimitMax)
	assert.Equal(t, 15*time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, 24*time.Hour, cfg.PendingOrderTTL)
	assert.Equal(t, 10*time.Minute, cfg.SweepInterval)
	assert.False(t, cfg.IsProduction())
}

func TestFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("PAYMENT_CURRENCY", "EUR")
	t.Setenv("CACHE_TTL", "5m")
	t.Setenv("RATE_LIMIT_MAX", "7")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, "eur", cfg.Currency)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 7, cfg.RateLimitMax)
}

func TestFromEnv_InvalidValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_TTL", "forever")
	t.Setenv("RATE_LIMIT_MAX", "-1")
	t.Setenv("APP_ENV", "staging")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_TTL")
	assert.Contains(t, err.Error(), "RATE_LIMIT_MAX")
	assert.Contains(t, err.Error(), "APP_ENV")
}

func TestFromEnv_ProductionRequirements(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")

	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "MONGODB_URI")
	assert.Contains(t, err.Error(), "STRIPE_SECRET_KEY")

	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "s3cret", cfg.JWTSecret)
}

func TestLoad_DotEnv(t *testing.T) {
	clearEnv(t)
	// godotenv never overrides variables that are already set, even to ""
	os.Unsetenv("PORT")
	dir := t.TempDir()
	file := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(file, []byte("PORT=6001\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("PORT") })

	cfg, err := Load(file)
	require.NoError(t, err)
	assert.Equal(t, "6001", cfg.Port)
}
