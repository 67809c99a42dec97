package handlers

import (
	"book-club-system/apperrors"
	"book-club-system/middleware"
	"book-club-system/models"
	"book-club-system/services"

	"github.com/gofiber/fiber/v2"
)

const maxCoverSize = 5 * 1024 * 1024

type changeRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=MODERATOR READER"`
}

func SetupClubRoutes(router fiber.Router, clubService *services.ClubService) {
	router.Post("/clubs", func(c *fiber.Ctx) error {
		var input services.CreateClubInput
		if err := parseBody(c, &input); err != nil {
			return respondError(c, err)
		}

		club, err := clubService.CreateClub(c.UserContext(), middleware.UserID(c), input)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(club)
	})

	router.Get("/clubs/:id", func(c *fiber.Ctx) error {
		club, err := clubService.GetClub(c.UserContext(), c.Params("id"))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(club)
	})

	router.Post("/clubs/:id/cover", func(c *fiber.Ctx) error {
		fileHeader, err := c.FormFile("cover")
		if err != nil {
			return respondError(c, apperrors.NewBadRequestError("cover file is required"))
		}
		if fileHeader.Size > maxCoverSize {
			return respondError(c, apperrors.NewBadRequestError("cover must be at most 5MB"))
		}

		file, err := fileHeader.Open()
		if err != nil {
			return respondError(c, err)
		}
		defer file.Close()

		club, err := clubService.SetCover(c.UserContext(), c.Params("id"), middleware.UserID(c),
			fileHeader.Filename, fileHeader.Header.Get(fiber.HeaderContentType), file)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(club)
	})

	router.Patch("/clubs/:id/members/:userId/role", func(c *fiber.Ctx) error {
		var req changeRoleRequest
		if err := parseBody(c, &req); err != nil {
			return respondError(c, err)
		}

		membership, err := clubService.ChangeRole(c.UserContext(), c.Params("id"), middleware.UserID(c),
			c.Params("userId"), models.ClubRole(req.Role))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(membership)
	})
}
