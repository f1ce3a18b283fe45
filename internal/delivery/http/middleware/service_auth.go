package middleware

import (
	"errors"
	"strings"

	"jobs-etl/internal/pkg/jwt"
	"jobs-etl/internal/pkg/logging"

	"github.com/gofiber/fiber/v3"
)

// LocalsSubject holds the authenticated caller's subject.
const LocalsSubject = "subject"

var (
	errMissingToken = fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
	errExpiredToken = fiber.NewError(fiber.StatusUnauthorized, "token expired")
	errBadToken     = fiber.NewError(fiber.StatusUnauthorized, "invalid token")
)

// ServiceAuth admits callers presenting a valid service token.
type ServiceAuth struct {
	tokens jwt.Service
	logger *logging.Logger
}

func NewServiceAuth(tokens jwt.Service, logger *logging.Logger) *ServiceAuth {
	return &ServiceAuth{tokens: tokens, logger: logger}
}

func (a *ServiceAuth) Handler() fiber.Handler {
	return func(c fiber.Ctx) error {
		raw, ok := strings.CutPrefix(strings.TrimSpace(c.Get(fiber.HeaderAuthorization)), "Bearer ")
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			return errMissingToken
		}

		claims, err := a.tokens.ValidateToken(raw)
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return errExpiredToken
		case err != nil:
			a.logger.Debug("rejected service token", "path", c.Path(), "error", err)
			return errBadToken
		}

		c.Locals(LocalsSubject, claims.Subject)
		a.logger.Info("service call authorized", "subject", claims.Subject, "method", c.Method(), "path", c.Path())
		return c.Next()
	}
}
