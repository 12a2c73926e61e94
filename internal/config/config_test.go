package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DB_USER", "app")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_NAME", "insights")
	t.Setenv("JWT_SECRET", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "3306", cfg.DBPort)
	assert.Equal(t, 12, cfg.BcryptCost)
	assert.Equal(t, time.UTC, cfg.Timezone)
	assert.Equal(t, PasswordPolicyBasic, cfg.PasswordPolicy)
	assert.Equal(t, BucketModeExact, cfg.StatsBucketMode)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.True(t, cfg.RunMigrations)
	assert.False(t, cfg.EventsEnabled)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("DB_USER", "")
	t.Setenv("DB_HOST", "")
	t.Setenv("DB_NAME", "")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	for _, key := range []string{"DB_USER", "DB_HOST", "DB_NAME", "JWT_SECRET"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_TIMEZONE", "America/Mexico_City")
	t.Setenv("PASSWORD_POLICY", "STRICT")
	t.Setenv("STATS_BUCKET_MODE", "store")
	t.Setenv("STORE_TIMEOUT", "2s")
	t.Setenv("RABBITMQ_URL", "amqp://u:p@mq:5672/")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "America/Mexico_City", cfg.Timezone.String())
	assert.Equal(t, PasswordPolicyStrict, cfg.PasswordPolicy)
	assert.Equal(t, BucketModeStore, cfg.StatsBucketMode)
	assert.Equal(t, 2*time.Second, cfg.StoreTimeout)
	assert.Equal(t, "amqp://u:p@mq:5672/", cfg.AMQPURL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	setRequired(t)
	t.Setenv("APP_TIMEZONE", "Mars/Olympus")
	t.Setenv("PASSWORD_POLICY", "lenient")
	t.Setenv("STATS_BUCKET_MODE", "fuzzy")
	t.Setenv("BCRYPT_COST", "99")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "APP_TIMEZONE")
	assert.Contains(t, err.Error(), "PASSWORD_POLICY")
	assert.Contains(t, err.Error(), "STATS_BUCKET_MODE")
	assert.Contains(t, err.Error(), "BCRYPT_COST")
}

func TestLoadCacheConfig(t *testing.T) {
	c := LoadCacheConfig()
	assert.True(t, c.Enabled)
	assert.Equal(t, 10*time.Minute, c.TTL)
	assert.Equal(t, "insights", c.Prefix)

	t.Setenv("CACHE_TTL", "5m")
	t.Setenv("CACHE_ENABLED", "off")
	c = LoadCacheConfig()
	assert.False(t, c.Enabled)
	assert.Equal(t, 5*time.Minute, c.TTL)
}

func TestLoadRateLimits(t *testing.T) {
	rl := LoadRateLimits()

	assert.Equal(t, 60, rl.API.Capacity)
	assert.Equal(t, time.Second, rl.API.RefillInterval)
	assert.Equal(t, 5, rl.Login.Capacity)
	assert.Equal(t, 12*time.Second, rl.Login.RefillInterval)
	assert.Equal(t, "ip", rl.Login.KeyStrategy)
	assert.Equal(t, 3, rl.Register.Capacity)
	assert.Equal(t, 20*time.Second, rl.Register.RefillInterval)
	assert.Equal(t, 30, rl.Statistics.Capacity)
	assert.Equal(t, "rl:statistics", rl.Statistics.Prefix)
}

func TestLoadRateLimitProfileOverride(t *testing.T) {
	t.Setenv("RATE_LIMIT_LOGIN_PER_MINUTE", "10")
	t.Setenv("RATE_LIMIT_LOGIN_KEY_STRATEGY", "ip_route")

	p := LoadRateLimitProfile("login", 5, "ip")
	assert.Equal(t, 10, p.Capacity)
	assert.Equal(t, 6*time.Second, p.RefillInterval)
	assert.Equal(t, "ip_route", p.KeyStrategy)
	assert.GreaterOrEqual(t, p.TTL, 5*p.RefillInterval)
}

func TestLoadRedisConfig(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6380")
	assert.Equal(t, "cache:6380", LoadRedisConfig().Addr)

	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("REDIS_TLS", "1")
	c := LoadRedisConfig()
	assert.Equal(t, "redis:6379", c.Addr)
	assert.True(t, c.TLS)
}
