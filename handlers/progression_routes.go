// handlers/progression_routes.go
package handlers

import (
	"strconv"

	"book-club-system/apperrors"
	"book-club-system/middleware"
	"book-club-system/models"
	"book-club-system/services"

	"github.com/gofiber/fiber/v2"
)

type grantXPRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Action string `json:"action" validate:"required"`
	Amount *int64 `json:"amount" validate:"omitempty,min=0"`
}

func SetupProgressionRoutes(router fiber.Router, progressionService *services.ProgressionService) {
	router.Get("/user/progress", func(c *fiber.Ctx) error {
		progress, err := progressionService.GetProgress(c.UserContext(), middleware.UserID(c))
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(progress)
	})

	router.Get("/user/progress/history", func(c *fiber.Ctx) error {
		page, _ := strconv.Atoi(c.Query("page", "1"))
		size, _ := strconv.Atoi(c.Query("size", "20"))

		history, err := progressionService.GetUserHistory(c.UserContext(), middleware.UserID(c), page, size)
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(history)
	})

	admin := router.Group("/admin", middleware.RequireRole("admin"))

	admin.Post("/xp/grant", func(c *fiber.Ctx) error {
		var req grantXPRequest
		if err := parseBody(c, &req); err != nil {
			return respondError(c, err)
		}
		action := models.ActionKind(req.Action)
		if !action.Known() {
			return respondError(c, apperrors.NewBadRequestError("unknown action "+req.Action))
		}

		var (
			result *services.AwardResult
			err    error
		)
		if req.Amount != nil {
			result, err = progressionService.AwardAmount(c.UserContext(), req.UserID, action, *req.Amount)
		} else {
			result, err = progressionService.Award(c.UserContext(), req.UserID, action)
		}
		if err != nil {
			return respondError(c, err)
		}
		return c.JSON(result)
	})
}
