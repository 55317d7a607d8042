package http

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"scrapeforge/internal/config"
)

// authMiddleware validates the Authorization: Bearer <key> header
// against the configured API key.
func authMiddleware(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !cfg.Auth.Enabled {
			return c.Next()
		}

		rawAuth := c.Get("Authorization")
		if rawAuth == "" || !strings.HasPrefix(rawAuth, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Success: false,
				Code:    "UNAUTHENTICATED",
				Error:   "Missing Authorization Bearer token",
			})
		}

		token := strings.TrimSpace(strings.TrimPrefix(rawAuth, "Bearer "))
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Auth.APIKey)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Success: false,
				Code:    "UNAUTHENTICATED",
				Error:   "Invalid API key",
			})
		}

		c.Locals("api_key", token)
		return c.Next()
	}
}

// rateLimitMiddleware enforces a per-minute fixed-window rate limit
// using Redis. Callers are keyed by API key when auth is on, by client
// IP otherwise. Fails open when redis is unavailable.
func rateLimitMiddleware(cfg *config.Config, rdb *redis.Client) fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := cfg.RateLimit.DefaultPerMinute
		if limit <= 0 {
			return c.Next()
		}

		caller := c.IP()
		if key, ok := c.Locals("api_key").(string); ok && key != "" {
			caller = key
		}

		now := time.Now().UTC()
		window := now.Format("200601021504") // YYYYMMDDHHMM minute window
		key := fmt.Sprintf("scrapeforge:rl:%s:%s", caller, window)

		ctx := c.Context()
		count, err := rdb.Incr(ctx, key).Result()
		if err != nil {
			return c.Next()
		}
		if count == 1 {
			// First hit in this window; set TTL
			_ = rdb.Expire(ctx, key, time.Minute)
		}

		if count > int64(limit) {
			return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{
				Success: false,
				Code:    "RATE_LIMIT_EXCEEDED",
				Error:   "Rate limit exceeded, try again later",
			})
		}

		return c.Next()
	}
}
