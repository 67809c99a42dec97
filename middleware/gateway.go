package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// GatewayAuthMiddleware validates the Bearer token sent by the API gateway.
// Paths in skip (e.g. /health) are let through untouched.
func GatewayAuthMiddleware(expectedToken string, log zerolog.Logger, skip ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		for _, p := range skip {
			if c.Path() == p {
				return c.Next()
			}
		}

		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			log.Warn().Str("path", c.Path()).Msg("missing gateway authorization header")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "gateway authentication token missing",
			})
		}

		// Accept "Bearer <token>" or the raw token.
		token := strings.TrimPrefix(authHeader, "Bearer ")

		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			log.Warn().Str("path", c.Path()).Msg("invalid gateway token")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid gateway authentication token",
			})
		}
		return c.Next()
	}
}
