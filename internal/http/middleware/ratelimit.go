package middleware

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// RateLimitConfig config for Redis-based RPS limiter on the admin API.
type RateLimitConfig struct {
	Redis          *redis.Client
	DefaultRPS     int           // requests per window per token
	Burst          int           // single-window cap when higher than RPS
	KeyPrefix      string        // e.g. "rl:admin:"
	Window         time.Duration // usually 1s
	RetryAfterHint bool          // set Retry-After header when limited
}

// windowLimit is the request cap for one fixed window: the configured RPS,
// raised to the burst allowance when that is higher. Zero RPS disables the
// limiter regardless of burst.
func windowLimit(rps, burst int) int {
	if rps <= 0 {
		return 0
	}
	if burst > rps {
		return burst
	}
	return rps
}

// RateLimitMiddleware applies a simple fixed-window per-token RPS limit.
// It expects admin_token in echo.Context (set by APIKeyMiddleware).
func RateLimitMiddleware(cfg RateLimitConfig) echo.MiddlewareFunc {
	if cfg.Window <= 0 {
		cfg.Window = time.Second
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rl:admin:"
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok, ok := TokenFromCtx(c)
			if !ok || tok == "" {
				return next(c)
			}

			max := windowLimit(cfg.DefaultRPS, cfg.Burst)
			if max <= 0 || cfg.Redis == nil {
				// no limit configured or redis missing (dev): allow
				return next(c)
			}

			// fixed-window key: rl:admin:{token}:{unix_sec}
			now := time.Now()
			key := cfg.KeyPrefix + tok + ":" + strconv.FormatInt(now.Unix(), 10)

			// INCR and set expiry 2*window (safety)
			pipe := cfg.Redis.Pipeline()
			cnt := pipe.Incr(c.Request().Context(), key)
			pipe.Expire(c.Request().Context(), key, cfg.Window*2)
			_, err := pipe.Exec(c.Request().Context())
			if err != nil {
				return next(c)
			}

			if cnt.Val() > int64(max) {
				if cfg.RetryAfterHint {
					// seconds until next window
					remain := cfg.Window - time.Duration(now.UnixNano()%int64(cfg.Window))
					if remain > 0 {
						c.Response().Header().Set("Retry-After", strconv.Itoa(int(remain.Round(time.Second)/time.Second)))
					}
				}
				return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "rate limited"})
			}
			return next(c)
		}
	}
}
