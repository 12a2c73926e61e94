package config

import "time"

// CacheConfig defines settings for the statistics cache. When Enabled is
// false or no Redis client is available, statistics are computed on every
// request. TTL is the lifetime of a cached snapshot and Prefix namespaces the
// keys in Redis.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// LoadCacheConfig reads CACHE_* variables. TTL defaults to 10 minutes and is
// clamped to at least one second.
func LoadCacheConfig() CacheConfig {
	c := CacheConfig{
		Enabled: envBool("CACHE_ENABLED", true),
		TTL:     envDur("CACHE_TTL", 10*time.Minute),
		Prefix:  envStr("CACHE_PREFIX", "insights"),
	}
	if c.TTL < time.Second {
		c.TTL = time.Second
	}
	return c
}
