package http

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
)

// enqueueRateLimit enforces a per-client fixed-window rate limit on
// the scrape endpoint using Redis. The bucket key is the client IP;
// the scrape API has no per-caller credentials, and the gate behind it
// does the real per-term policing.
func (s *Server) enqueueRateLimit() fiber.Handler {
	return func(c *fiber.Ctx) error {
		limit := s.config.RateLimit.DefaultPerMinute
		if s.rdb == nil || limit <= 0 {
			return c.Next()
		}

		now := time.Now().UTC()
		window := now.Format("200601021504") // YYYYMMDDHHMM minute window
		key := fmt.Sprintf("tcad:rl:%s:%s", c.IP(), window)

		ctx := c.Context()
		count, err := s.rdb.Incr(ctx, key).Result()
		if err != nil {
			// Redis being down should not block enqueues; the gate
			// still applies.
			return c.Next()
		}
		if count == 1 {
			// First hit in this window; set TTL.
			_ = s.rdb.Expire(ctx, key, time.Minute)
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
