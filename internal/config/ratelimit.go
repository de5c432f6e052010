package config

import (
	"os"
	"strconv"
	"time"
)

// RateLimitConfig controls the fixed-window limiter guarding the
// credential-accepting auth endpoints. The quota applies per client
// address per window; exceeding it yields a uniform throttling response
// regardless of credential validity.
type RateLimitConfig struct {
	Enabled bool
	Window  time.Duration
	Max     int
	Prefix  string
	Debug   bool
}

// LoadRateLimitConfig reads limiter settings from the environment with
// conservative defaults: 10 attempts per 15-minute window.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled: envBool("RATE_LIMIT_ENABLED", true),
		Window:  envDur("RATE_LIMIT_WINDOW", 15*time.Minute),
		Max:     envInt("RATE_LIMIT_MAX", 10),
		Prefix:  envStr("RATE_LIMIT_PREFIX", "rl"),
		Debug:   envBool("RATE_LIMIT_DEBUG", false),
	}
	if cfg.Max < 1 {
		cfg.Max = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	return cfg
}

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func envBool(k string, d bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	switch v {
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	return d
}

func envInt(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return n
	}
	return d
}

func envDur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	if dur, err := time.ParseDuration(v); err == nil {
		return dur
	}
	return d
}
