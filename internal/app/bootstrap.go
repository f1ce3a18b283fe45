package app

import (
	"context"
	"fmt"
	"strings"

	"jobs-etl/internal/delivery/http/handler"
	"jobs-etl/internal/delivery/http/middleware"
	"jobs-etl/internal/delivery/http/routes"
	"jobs-etl/internal/pkg/logging"
	"jobs-etl/internal/repository"
	"jobs-etl/internal/ws"

	"github.com/gofiber/fiber/v3"
)

type App struct {
	Fiber *fiber.App
}

func New(c *Container) *App {
	f := fiber.New(fiber.Config{AppName: c.Config.App.AppName})

	registerGlobalMiddleware(f, c.Logger)
	newRegistry(c).Register(f)

	return &App{Fiber: f}
}

func registerGlobalMiddleware(app *fiber.App, logger *logging.Logger) {
	if app == nil {
		return
	}

	app.Use(middleware.AccessLog(logger))
	app.Use(middleware.NewErrorMiddleware(logger).Middleware())
}

func newRegistry(c *Container) *routes.Registry {
	checks := map[string]handler.Check{
		"postgres": c.DB.Ping,
		"redis": func(ctx context.Context) error {
			return c.Cache.Ping(ctx)
		},
	}

	return routes.NewRegistry(
		handler.NewHealthHandler(checks),
		handler.NewRunHandler(c.Scheduler, c.Latest),
		handler.NewJobHandler(repository.NewPostgresJobRepository(c.DB)),
		ws.NewHandler(c.Hub, c.Logger, c.Config.App.WSAllowedOrigins...),
		middleware.NewServiceAuth(c.JWT, c.Logger),
	)
}

func ListenAddr(port string) (string, error) {
	p := strings.TrimSpace(port)
	if p == "" {
		return "", fmt.Errorf("empty HTTP port")
	}
	if strings.HasPrefix(p, ":") {
		return p, nil
	}
	return ":" + p, nil
}
