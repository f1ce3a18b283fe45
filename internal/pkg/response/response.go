// Package response writes the JSON envelope every API route answers with.
package response

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v3"
)

type Envelope struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

const (
	MessageOK                 = "ok"
	MessageAccepted           = "run accepted"
	MessageServiceUnavailable = "service unavailable"
)

// Success and Error differ only in intent; both write an Envelope. An empty
// message falls back to the status text.
func Success(c fiber.Ctx, status int, message string, data any) error {
	return write(c, status, message, data)
}

func Error(c fiber.Ctx, status int, message string, data any) error {
	return write(c, status, message, data)
}

func write(c fiber.Ctx, status int, message string, data any) error {
	if http.StatusText(status) == "" {
		status = fiber.StatusInternalServerError
	}
	if message == "" {
		message = strings.ToLower(http.StatusText(status))
	}
	return c.Status(status).JSON(Envelope{Status: status, Message: message, Data: data})
}
