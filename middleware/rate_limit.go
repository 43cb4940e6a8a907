package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

func ipLimiter(max int, window time.Duration, message string) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        max,
		Expiration: window,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": message,
			})
		},
	})
}

// GlobalRateLimiter applies to every endpoint
func GlobalRateLimiter() fiber.Handler {
	return ipLimiter(100, time.Minute, "Too many requests. Please try again later.")
}

// LoginRateLimiter is stricter for sign in attempts
func LoginRateLimiter() fiber.Handler {
	return ipLimiter(10, time.Minute, "Too many failed attempts. Please try again later.")
}

// RegisterRateLimiter limits account creation
func RegisterRateLimiter() fiber.Handler {
	return ipLimiter(5, 5*time.Minute, "Too many registration attempts. Please try again later.")
}

// ForgotPasswordRateLimiter limits reset emails
func ForgotPasswordRateLimiter() fiber.Handler {
	return ipLimiter(3, 10*time.Minute, "Too many reset requests. Please try again later.")
}

// VerificationRateLimiter limits verification emails
func VerificationRateLimiter() fiber.Handler {
	return ipLimiter(3, time.Minute, "Too many requests. Please wait before requesting another email.")
}
