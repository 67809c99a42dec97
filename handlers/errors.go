package handlers

import (
	"errors"
	"strings"

	"book-club-system/apperrors"
	"book-club-system/logger"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

var validate = validator.New()

// respondError maps an application error onto an HTTP status and the
// {"error", "code"} body.
func respondError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status = fiber.StatusNotFound
	case errors.Is(err, apperrors.ErrConflict):
		status = fiber.StatusConflict
	case errors.Is(err, apperrors.ErrForbidden):
		status = fiber.StatusForbidden
	case errors.Is(err, apperrors.ErrBadRequest):
		status = fiber.StatusBadRequest
	case errors.Is(err, apperrors.ErrTransactionFailure):
		status = fiber.StatusServiceUnavailable
	}

	body := fiber.Map{"error": err.Error()}
	if code := apperrors.CodeOf(err); code != "" {
		body["code"] = code
	}
	if status >= fiber.StatusInternalServerError {
		logger.Error().Err(err).Str("path", c.Path()).Str("method", c.Method()).Msg("request failed")
		if status == fiber.StatusInternalServerError {
			body["error"] = "internal server error"
		}
	}
	return c.Status(status).JSON(body)
}

// parseBody decodes the JSON body into out and validates it.
func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return apperrors.NewBadRequestError("invalid request body")
	}
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, e := range verrs {
				msgs = append(msgs, formatValidationError(e))
			}
			return apperrors.NewBadRequestError(strings.Join(msgs, "; "))
		}
		return apperrors.NewBadRequestError(err.Error())
	}
	return nil
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "url":
		return e.Field() + " must be a valid URL"
	default:
		return e.Field() + " validation failed: " + e.Tag()
	}
}
