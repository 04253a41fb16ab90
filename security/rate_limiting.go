package security

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

const DefaultLimitPerMinute = 30

type RateLimiter struct {
	redis  redis.Cmdable
	limit  int64
	window time.Duration
	logger *slog.Logger

	// IdentifierExtractor picks the bucket a request is counted in.
	IdentifierExtractor func(e *core.RequestEvent) string
}

func NewRateLimiter(redisClient redis.Cmdable, perMinute int, logger *slog.Logger) *RateLimiter {
	if perMinute <= 0 {
		perMinute = DefaultLimitPerMinute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{
		redis:  redisClient,
		limit:  int64(perMinute),
		window: time.Minute,
		logger: logger,
		IdentifierExtractor: func(e *core.RequestEvent) string {
			return e.RealIP()
		},
	}
}

// Limit returns a route middleware that rejects bots and caps requests per
// client within scope. Redis failures let the request through.
func (r *RateLimiter) Limit(scope string) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
			return apis.NewForbiddenError("Access denied", nil)
		}

		ctx := e.Request.Context()
		key := fmt.Sprintf("ratelimit:%s:%s", scope, r.IdentifierExtractor(e))

		count, err := r.redis.Incr(ctx, key).Result()
		if err != nil {
			r.logger.Warn("rate limiter unavailable", "scope", scope, "error", err)
			return e.Next()
		}
		if count == 1 {
			if err := r.redis.Expire(ctx, key, r.window).Err(); err != nil {
				r.logger.Warn("rate limiter expire failed", "key", key, "error", err)
			}
		}
		if count > r.limit {
			return apis.NewTooManyRequestsError("Rate limit exceeded. Please try again later.", nil)
		}

		return e.Next()
	}
}

func isSuspiciousUserAgent(ua string) bool {
	ua = strings.ToLower(ua)
	for _, pattern := range []string{"bot", "crawler", "spider", "scraper"} {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}
