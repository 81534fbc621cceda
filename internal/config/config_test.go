package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Location.FreshnessWindow)
	assert.Equal(t, 100.0, cfg.Location.MinRadiusMeters)
	assert.Equal(t, 10000.0, cfg.Location.MaxRadiusMeters)
	assert.Equal(t, 1, cfg.Location.MinLimit)
	assert.Equal(t, 100, cfg.Location.MaxLimit)
	assert.Equal(t, 0, cfg.RateLimit.LocationPerMin)
	assert.Equal(t, "general", cfg.Realtime.DefaultRoom)
	assert.False(t, cfg.NeedsRedis())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORE_BACKEND", "redis")
	t.Setenv("LOCATION_FRESHNESS", "90s")
	t.Setenv("NEARBY_MAX_RADIUS", "25000")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("REDIS_PORT", "6380")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.Location.FreshnessWindow)
	assert.Equal(t, 25000.0, cfg.Location.MaxRadiusMeters)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "localhost:6380", cfg.RedisAddr())
	assert.True(t, cfg.NeedsRedis())
}

func TestLoad_RequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestValidate_RejectsBadBounds(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	cfg, err := Load()
	require.NoError(t, err)

	cfg.Location.MinRadiusMeters = 20000
	assert.Error(t, cfg.Validate())

	cfg.Location.MinRadiusMeters = 100
	cfg.Location.MinLimit = 0
	assert.Error(t, cfg.Validate())

	cfg.Location.MinLimit = 1
	cfg.Store.Backend = "postgres"
	cfg.Postgres.URL = ""
	assert.ErrorContains(t, cfg.Validate(), "DATABASE_URL")
}
