package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/confhub/confhub/internal/config"
	"github.com/confhub/confhub/internal/model"
)

// NewFixedWindow builds a fixed-window rate limiter keyed by client
// address, backed by Redis so the quota holds across processes. When
// disabled or when no Redis client is available it degrades to a no-op;
// a Redis error at request time fails open so an outage never locks
// users out of login.
func NewFixedWindow(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}

	// INCR-with-expiry in one round trip; the window starts at the first
	// hit and is never extended by later hits.
	windowScript := redis.NewScript(`
        local count = redis.call('INCR', KEYS[1])
        if count == 1 then
            redis.call('PEXPIRE', KEYS[1], ARGV[1])
        end
        local ttl = redis.call('PTTL', KEYS[1])
        return { count, ttl }
    `)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			key := strings.Join([]string{cfg.Prefix, "ip", ip}, ":")

			ctx := c.Request().Context()
			vals, err := windowScript.Run(ctx, rdb, []string{key}, cfg.Window.Milliseconds()).Result()
			if err != nil {
				if cfg.Debug {
					c.Logger().Warnf("[ratelimit] redis error for key=%s: %v", key, err)
				}
				return next(c)
			}

			count := int64(0)
			ttlMs := int64(0)
			if arr, ok := vals.([]interface{}); ok && len(arr) == 2 {
				count = asInt64(arr[0])
				ttlMs = asInt64(arr[1])
			} else {
				if cfg.Debug {
					c.Logger().Warnf("[ratelimit] unexpected script result for key=%s: %#v", key, vals)
				}
				return next(c)
			}

			remaining := int64(cfg.Max) - count
			if remaining < 0 {
				remaining = 0
			}
			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > int64(cfg.Max) {
				secs := int(math.Ceil(float64(ttlMs) / 1000.0))
				if secs < 0 {
					secs = 0
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				if cfg.Debug {
					c.Logger().Infof("[ratelimit] block key=%s count=%d retry=%ds", key, count, secs)
				}
				return c.JSON(http.StatusTooManyRequests,
					model.NewAPIError(model.CodeRateLimited, "too many attempts, please try again later"))
			}
			return next(c)
		}
	}
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case float32:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
