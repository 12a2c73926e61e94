package config

import (
	"strings"
	"time"
)

// RateLimitConfig configures one token bucket. Capacity is the burst size;
// RefillTokens are added every RefillInterval. TTL bounds how long an idle
// bucket stays in Redis.
type RateLimitConfig struct {
	Enabled        bool
	Capacity       int
	RefillTokens   int
	RefillInterval time.Duration
	TTL            time.Duration
	KeyStrategy    string
	Prefix         string
	Debug          bool
}

// LoadRateLimitProfile builds the bucket for a named route group. perMinute
// and strategy are the defaults; RATE_LIMIT_<NAME>_PER_MINUTE and
// RATE_LIMIT_<NAME>_KEY_STRATEGY override them. RATE_LIMIT_ENABLED and
// RATE_LIMIT_DEBUG apply to every profile.
func LoadRateLimitProfile(name string, perMinute int, strategy string) RateLimitConfig {
	upper := strings.ToUpper(name)
	n := envInt("RATE_LIMIT_"+upper+"_PER_MINUTE", perMinute)
	if n < 1 {
		n = 1
	}
	cfg := RateLimitConfig{
		Enabled:        envBool("RATE_LIMIT_ENABLED", true),
		Capacity:       n,
		RefillTokens:   1,
		RefillInterval: time.Minute / time.Duration(n),
		KeyStrategy:    envStr("RATE_LIMIT_"+upper+"_KEY_STRATEGY", strategy),
		Prefix:         envStr("RATE_LIMIT_PREFIX", "rl") + ":" + strings.ToLower(name),
		Debug:          envBool("RATE_LIMIT_DEBUG", false),
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	cfg.TTL = envDur("RATE_LIMIT_TTL", 10*time.Minute)
	if minTTL := 5 * cfg.RefillInterval; cfg.TTL < minTTL {
		cfg.TTL = minTTL
	}
	return cfg
}

// RateLimits groups the per-route profiles.
type RateLimits struct {
	API        RateLimitConfig
	Login      RateLimitConfig
	Register   RateLimitConfig
	Statistics RateLimitConfig
}

// LoadRateLimits returns the default profiles: 60/min per user for the API,
// 5/min per IP for login, 3/min per IP for registration and 30/min per user
// for statistics.
func LoadRateLimits() RateLimits {
	return RateLimits{
		API:        LoadRateLimitProfile("api", 60, "user_or_ip"),
		Login:      LoadRateLimitProfile("login", 5, "ip"),
		Register:   LoadRateLimitProfile("register", 3, "ip"),
		Statistics: LoadRateLimitProfile("statistics", 30, "user_or_ip"),
	}
}
