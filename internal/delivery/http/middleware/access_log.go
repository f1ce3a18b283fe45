package middleware

import (
	"time"

	"jobs-etl/internal/pkg/logging"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

const headerRequestID = "X-Request-ID"

// AccessLog tags each request with an id and logs it once the handler chain
// returns. Client and server errors are logged at warn.
func AccessLog(logger *logging.Logger) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()

		rid := c.Get(headerRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(headerRequestID, rid)

		err := c.Next()

		status := c.Response().StatusCode()
		kv := []any{
			"rid", rid,
			"method", c.Method(),
			"path", c.OriginalURL(),
			"status", status,
			"latency", time.Since(start).String(),
			"ip", c.IP(),
		}
		if status >= fiber.StatusBadRequest {
			logger.Warn("http request", kv...)
		} else {
			logger.Info("http request", kv...)
		}
		return err
	}
}
