package middleware

import (
	"context"

	"book-club-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// UserEnsurer mirrors a gateway user into the local users table.
type UserEnsurer interface {
	EnsureUser(ctx context.Context, userID, username string) (*models.User, error)
}

// EnsureUserMiddleware makes sure the caller has a local user record before
// any handler runs. Must come after UserContextMiddleware.
func EnsureUserMiddleware(users UserEnsurer, log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, err := users.EnsureUser(c.UserContext(), UserID(c), Username(c)); err != nil {
			log.Error().Err(err).Str("user_id", UserID(c)).Msg("failed to ensure local user")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load user",
			})
		}
		return c.Next()
	}
}
