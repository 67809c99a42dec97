package handlers

import (
	"book-club-system/middleware"
	"book-club-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupNotificationRoutes(router fiber.Router, notificationService *services.NotificationService) {
	router.Get("/notifications", func(c *fiber.Ctx) error {
		unreadOnly := c.QueryBool("unread", false)
		limit := c.QueryInt("limit", 50)

		list, err := notificationService.List(c.UserContext(), middleware.UserID(c), unreadOnly, limit)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"notifications": list})
	})

	router.Get("/notifications/stream", streamNotifications(notificationService))

	router.Patch("/notifications/read-all", func(c *fiber.Ctx) error {
		updated, err := notificationService.MarkAllRead(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"updated": updated})
	})

	router.Patch("/notifications/:id/read", func(c *fiber.Ctx) error {
		if err := notificationService.MarkRead(c.UserContext(), middleware.UserID(c), c.Params("id")); err != nil {
			return respondError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
}
