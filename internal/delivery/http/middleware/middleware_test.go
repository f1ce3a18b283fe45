package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"jobs-etl/internal/errs"
	"jobs-etl/internal/pkg/jwt"

	"github.com/gofiber/fiber/v3"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{name: "run in progress", err: errs.RunInProgress("a run holds the lock"), status: fiber.StatusConflict},
		{name: "store down", err: errs.SchemaConflict("store unreachable", errors.New("dial tcp")), status: fiber.StatusServiceUnavailable},
		{name: "fiber 4xx keeps message", err: fiber.NewError(fiber.StatusUnauthorized, "token expired"), status: fiber.StatusUnauthorized, msg: "token expired"},
		{name: "fiber 5xx hides message", err: fiber.NewError(fiber.StatusBadGateway, "upstream said no"), status: fiber.StatusBadGateway},
		{name: "plain error", err: errors.New("boom"), status: fiber.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := classify(tt.err)
			if status != tt.status || msg != tt.msg {
				t.Fatalf("got (%d, %q), want (%d, %q)", status, msg, tt.status, tt.msg)
			}
		})
	}
}

func TestErrorMiddleware_RecoversPanics(t *testing.T) {
	app := fiber.New()
	app.Use(NewErrorMiddleware(nil).Middleware())
	app.Get("/panic", func(fiber.Ctx) error { panic("nil map") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/panic", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
}

func TestServiceAuth(t *testing.T) {
	svc := jwt.NewHMACService("secret", "jobs-etl", time.Hour)
	good, err := svc.GenerateServiceToken("cron")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	other, _ := jwt.NewHMACService("other-secret", "jobs-etl", time.Hour).GenerateServiceToken("cron")

	app := fiber.New()
	app.Use(NewErrorMiddleware(nil).Middleware())
	app.Post("/runs", NewServiceAuth(svc, nil).Handler(), func(c fiber.Ctx) error {
		return c.SendString(c.Locals(LocalsSubject).(string))
	})

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid", header: "Bearer " + good, want: fiber.StatusOK},
		{name: "missing", header: "", want: fiber.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + good, want: fiber.StatusUnauthorized},
		{name: "foreign signature", header: "Bearer " + other, want: fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/runs", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, resp.StatusCode)
			}
		})
	}
}
