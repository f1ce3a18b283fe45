package middleware

import (
	"errors"

	"jobs-etl/internal/errs"
	"jobs-etl/internal/pkg/logging"
	"jobs-etl/internal/pkg/response"

	"github.com/gofiber/fiber/v3"
)

// domainStatus maps pipeline error kinds that can surface through the API.
var domainStatus = map[errs.ErrorType]int{
	errs.TypeRunInProgress:  fiber.StatusConflict,
	errs.TypeSchemaConflict: fiber.StatusServiceUnavailable,
	errs.TypeSourceNotFound: fiber.StatusUnprocessableEntity,
}

type ErrorMiddleware struct {
	logger *logging.Logger
}

func NewErrorMiddleware(logger *logging.Logger) *ErrorMiddleware {
	return &ErrorMiddleware{logger: logger}
}

// Middleware renders handler errors and panics as response envelopes. Details
// of 5xx errors are logged, never returned.
func (m *ErrorMiddleware) Middleware() fiber.Handler {
	return func(c fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("panic recovered", "panic", r, "path", c.Path())
				err = response.Error(c, fiber.StatusInternalServerError, "", nil)
			}
		}()

		if err = c.Next(); err == nil {
			return nil
		}

		status, msg := classify(err)
		if status >= fiber.StatusInternalServerError {
			m.logger.Error("request failed", "path", c.Path(), "status", status, "error", err)
		}
		return response.Error(c, status, msg, nil)
	}
}

func classify(err error) (int, string) {
	if t, ok := errs.TypeOf(err); ok {
		if status, ok := domainStatus[t]; ok {
			return status, ""
		}
	}

	var fe *fiber.Error
	if errors.As(err, &fe) && fe.Code > 0 {
		if fe.Code >= fiber.StatusInternalServerError {
			return fe.Code, ""
		}
		return fe.Code, fe.Message
	}

	return fiber.StatusInternalServerError, ""
}
