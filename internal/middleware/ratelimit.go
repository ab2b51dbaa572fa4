package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/redis/go-redis/v9"
)

const rateLimitMessage = "Too many requests from this IP, please try again later."

// RateLimitConfig limits requests per client IP.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// Redis shares counters between instances; nil keeps them in memory.
	Redis *redis.Client
}

// RateLimit returns the /api limiter.
func RateLimit(cfg RateLimitConfig) fiber.Handler {
	lc := limiter.Config{
		Max:        cfg.Max,
		Expiration: cfg.Window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success":    false,
				"message":    rateLimitMessage,
				"statusCode": fiber.StatusTooManyRequests,
			})
		},
	}
	if cfg.Redis != nil {
		lc.Storage = NewRedisStorage(cfg.Redis, "nebs:ratelimit:")
	}
	return limiter.New(lc)
}
