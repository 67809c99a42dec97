package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"book-club-system/logger"
	"book-club-system/middleware"
	"book-club-system/services"

	"github.com/gofiber/fiber/v2"
)

const streamPollInterval = 2 * time.Second

// streamNotifications pushes the caller's new unread notifications as
// server-sent events.
func streamNotifications(notificationService *services.NotificationService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := middleware.UserID(c)
		ctx := c.UserContext()

		c.Set("Content-Type", "text/event-stream")
		c.Set("Cache-Control", "no-cache")
		c.Set("Connection", "keep-alive")
		c.Set("X-Accel-Buffering", "no") // nginx

		c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
			ticker := time.NewTicker(streamPollInterval)
			defer ticker.Stop()

			cursor := time.Now()

			// Initial keepalive (comment event)
			w.WriteString(":\n\n")
			if err := w.Flush(); err != nil {
				return
			}

			for range ticker.C {
				fresh, err := notificationService.ListSince(ctx, userID, cursor)
				if err != nil {
					logger.Warn().Err(err).Str("user_id", userID).Msg("notification stream query failed")
					continue
				}

				if len(fresh) == 0 {
					w.WriteString(":\n\n")
				}
				for _, n := range fresh {
					payload, _ := json.Marshal(n)
					fmt.Fprintf(w, "id: %s\nevent: notification\ndata: %s\n\n", n.ID, payload)
					cursor = n.CreatedAt
				}

				// A failed flush means the client went away.
				if err := w.Flush(); err != nil {
					return
				}
			}
		})
		return nil
	}
}
