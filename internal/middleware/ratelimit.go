package middleware

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/requestr/api/pkg/response"
)

// RateLimiter is a fixed-window limiter backed by Redis counters
type RateLimiter struct {
	redis  *redis.Client
	prefix string
}

func NewRateLimiter(redisClient *redis.Client, prefix string) *RateLimiter {
	return &RateLimiter{redis: redisClient, prefix: prefix}
}

// clientKey identifies the caller: the artist when authenticated, the client IP otherwise
func clientKey(c *fiber.Ctx) string {
	if username := GetUsername(c); username != "" {
		return "artist:" + username
	}
	return "ip:" + c.IP()
}

// Limit creates a rate limiting middleware
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rl == nil || rl.redis == nil || maxRequests <= 0 {
			return c.Next()
		}

		key := fmt.Sprintf("%s:ratelimit:%s:%s", rl.prefix, keyPrefix, clientKey(c))
		ctx := c.UserContext()

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			// If Redis fails, allow the request but log the error
			slog.Warn("rate limiter unavailable", "key", key, "error", err)
			return c.Next()
		}

		// Set expiration on first request
		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		if count > int64(maxRequests) {
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))

		return c.Next()
	}
}

// SubmitLimit limits new song requests per minute
func (rl *RateLimiter) SubmitLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("submit", maxPerMin, time.Minute)
}

// SearchLimit limits track searches per minute
func (rl *RateLimiter) SearchLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("search", maxPerMin, time.Minute)
}
