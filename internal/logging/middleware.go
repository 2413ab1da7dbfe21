package logging

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// RequestIDHeader carries the id that ends up on prediction events
const RequestIDHeader = "X-Request-ID"

// RequestLogger assigns every request an id, puts it and logger on the
// user context, and logs one line per request. Paths in skip still get an
// id but are not logged.
func RequestLogger(logger *Logger, skip ...string) fiber.Handler {
	quiet := make(map[string]bool, len(skip))
	for _, p := range skip {
		quiet[p] = true
	}

	return func(c *fiber.Ctx) error {
		id := c.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDHeader, id)
		c.SetUserContext(WithLogger(WithRequestID(c.UserContext(), id), logger))

		if quiet[c.Path()] {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		if err != nil {
			// Render now so the logged status is the one the client sees
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		kv := []interface{}{
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", id,
			"ip", c.IP(),
		}
		if err != nil {
			kv = append(kv, "error", err)
		}

		switch {
		case status >= fiber.StatusInternalServerError:
			logger.Error("Request failed", kv...)
		case status >= fiber.StatusBadRequest:
			logger.Warn("Request rejected", kv...)
		default:
			logger.Info("Request completed", kv...)
		}
		return nil
	}
}
