package ratelimit

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/JonasKellner/RenderForge/internal/pkg/usercontext"
)

// Middleware limits requests to the wrapped handlers under the named tier.
// Authenticated requests are keyed by user id, anonymous ones by client IP.
func Middleware(action, tierName string) fiber.Handler {
	limiter := NewLimiter()

	return func(c *fiber.Ctx) error {
		identifier := c.IP()
		if userCtx := usercontext.GetUserContext(c); userCtx.IsLoggedIn {
			identifier = fmt.Sprintf("user:%d", userCtx.UserID)
		}

		tier := GetTier(tierName)
		result := limiter.CheckLimit(c.Context(), identifier, action, tierName)

		c.Set("X-RateLimit-Limit", strconv.Itoa(tier.MaxRequests))
		c.Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			retryAfter := result.RetryAfter
			if retryAfter <= 0 {
				retryAfter = time.Second
			}
			c.Set("Retry-After", strconv.Itoa(int(retryAfter.Round(time.Second).Seconds())))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":          "rate_limit_exceeded",
				"type":           "RATE_LIMITED",
				"retry_after_ms": retryAfter.Milliseconds(),
				"message":        fmt.Sprintf("Too many requests. Try again in %s.", formatCountdown(retryAfter)),
			})
		}

		return c.Next()
	}
}

// formatCountdown renders a retry delay for humans, e.g. "14m 59s".
func formatCountdown(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Second {
		d = time.Second
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) - m*60
	if s == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dm %ds", m, s)
}
