package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// Locals keys set by UserContextMiddleware.
const (
	LocalUserID    = "user_id"
	LocalUserRoles = "user_roles"
	LocalUsername  = "username"
)

// UserContextMiddleware extracts the identity the gateway forwards in
// X-User-ID, X-User-Roles and X-Username. Requests without a user id are
// rejected.
func UserContextMiddleware(log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := strings.TrimSpace(c.Get("X-User-ID"))
		if userID == "" {
			log.Warn().Str("path", c.Path()).Msg("X-User-ID missing on secured route")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing X-User-ID: request must come through the gateway",
			})
		}

		var roles []string
		for _, r := range strings.Split(c.Get("X-User-Roles"), ",") {
			r = strings.TrimSpace(r)
			if r != "" {
				roles = append(roles, r)
			}
		}

		c.Locals(LocalUserID, userID)
		c.Locals(LocalUserRoles, roles)
		c.Locals(LocalUsername, strings.TrimSpace(c.Get("X-Username")))

		log.Debug().Str("user_id", userID).Strs("roles", roles).Str("path", c.Path()).Msg("user context")
		return c.Next()
	}
}

// RequireRole lets the request through only when the user holds role.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		roles, _ := c.Locals(LocalUserRoles).([]string)
		for _, r := range roles {
			if r == role {
				return c.Next()
			}
		}
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": "insufficient role",
		})
	}
}

// UserID returns the caller's id set by UserContextMiddleware.
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(LocalUserID).(string)
	return id
}

// Username returns the caller's gateway username, possibly empty.
func Username(c *fiber.Ctx) string {
	name, _ := c.Locals(LocalUsername).(string)
	return name
}
