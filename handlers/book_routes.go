package handlers

import (
	"book-club-system/middleware"
	"book-club-system/models"
	"book-club-system/services"

	"github.com/gofiber/fiber/v2"
)

type updateBookStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pendiente leyendo leido"`
}

func SetupBookRoutes(router fiber.Router, bookService *services.BookService) {
	router.Post("/clubs/:id/books", func(c *fiber.Ctx) error {
		var input services.AddBookInput
		if err := parseBody(c, &input); err != nil {
			return respondError(c, err)
		}

		book, err := bookService.AddBook(c.UserContext(), c.Params("id"), middleware.UserID(c), input)
		if err != nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(book)
	})

	router.Patch("/books/:id/status", func(c *fiber.Ctx) error {
		var req updateBookStatusRequest
		if err := parseBody(c, &req); err != nil {
			return respondError(c, err)
		}

		change, err := bookService.UpdateStatus(c.UserContext(), c.Params("id"), middleware.UserID(c), models.BookStatus(req.Status))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(change)
	})
}
