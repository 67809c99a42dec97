package middleware

import (
	"time"

	"book-club-system/metrics"

	"github.com/gofiber/fiber/v2"
)

// RequestMetrics observes the duration of every request, labelled with the
// matched route pattern rather than the raw path.
func RequestMetrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		metrics.ObserveHTTPRequest(c.Method(), c.Route().Path, status, time.Since(start))
		return err
	}
}
