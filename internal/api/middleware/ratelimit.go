package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// rateLimit bundles the knobs the route groups vary. Every limiter shares a
// one minute window; only the budget, key prefix, and refusal text differ.
type rateLimit struct {
	max        int
	prefix     string
	message    string
	perUser    bool
	skipFailed bool
}

func (r rateLimit) handler() fiber.Handler {
	return limiter.New(limiter.Config{
		Max:          r.max,
		Expiration:   time.Minute,
		KeyGenerator: r.key,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": r.message,
			})
		},
		SkipFailedRequests: r.skipFailed,
	})
}

// key buckets authenticated traffic per user so clients behind a shared NAT
// do not exhaust each other's budget. Unauthenticated traffic falls back to
// the client IP.
func (r rateLimit) key(c *fiber.Ctx) string {
	if r.perUser {
		if userID := c.Locals("user_id"); userID != nil {
			return fmt.Sprintf("%s:user:%s", r.prefix, userID)
		}
	}
	return fmt.Sprintf("%s:ip:%s", r.prefix, c.IP())
}

// DefaultRateLimit covers the authenticated API surface at 100 requests per
// minute per user.
func DefaultRateLimit() fiber.Handler {
	return rateLimit{
		max:     100,
		prefix:  "api",
		perUser: true,
		message: "Rate limit exceeded. Slow down and try again shortly.",
	}.handler()
}

// AuthRateLimit guards login and signup at 5 attempts per minute per IP.
func AuthRateLimit() fiber.Handler {
	return rateLimit{
		max:     5,
		prefix:  "auth",
		message: "Too many attempts. Try again in a minute.",
	}.handler()
}

// ChatRateLimit caps completion turns at 30 per minute per user. Failed
// requests do not count against the budget.
func ChatRateLimit() fiber.Handler {
	return rateLimit{
		max:        30,
		prefix:     "chat",
		perUser:    true,
		skipFailed: true,
		message:    "Message rate limit reached. Wait a moment before sending more.",
	}.handler()
}
