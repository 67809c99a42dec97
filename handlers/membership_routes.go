package handlers

import (
	"book-club-system/middleware"
	"book-club-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupMembershipRoutes(router fiber.Router, membershipService *services.MembershipService) {
	router.Post("/clubs/:id/join-requests", func(c *fiber.Ctx) error {
		req, err := membershipService.Request(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(req)
	})

	router.Get("/clubs/:id/join-requests", func(c *fiber.Ctx) error {
		pending, err := membershipService.ListPending(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(fiber.Map{"requests": pending})
	})

	router.Post("/join-requests/:id/accept", func(c *fiber.Ctx) error {
		membership, err := membershipService.Accept(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(membership)
	})

	router.Post("/join-requests/:id/reject", func(c *fiber.Ctx) error {
		req, err := membershipService.Reject(c.UserContext(), c.Params("id"), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(req)
	})
}
