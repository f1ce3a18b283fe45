package routes

import (
	"jobs-etl/internal/delivery/http/handler"
	"jobs-etl/internal/delivery/http/middleware"
	"jobs-etl/internal/ws"

	"github.com/gofiber/fiber/v3"
)

type Registry struct {
	health *handler.HealthHandler
	runs   *handler.RunHandler
	jobs   *handler.JobHandler
	ws     *ws.Handler
	auth   *middleware.ServiceAuth
}

func NewRegistry(
	health *handler.HealthHandler,
	runs *handler.RunHandler,
	jobs *handler.JobHandler,
	wsHandler *ws.Handler,
	auth *middleware.ServiceAuth,
) *Registry {
	return &Registry{health: health, runs: runs, jobs: jobs, ws: wsHandler, auth: auth}
}

func (r *Registry) Register(app *fiber.App) {
	if app == nil {
		return
	}

	r.registerHealth(app)
	r.registerV1(app.Group("/v1"))
}

func (r *Registry) registerHealth(app *fiber.App) {
	if r.health != nil {
		r.health.RegisterRoutes(app)
	}
}

func (r *Registry) registerV1(v1 fiber.Router) {
	var auth fiber.Handler
	if r.auth != nil {
		auth = r.auth.Handler()
	}

	if r.runs != nil {
		r.runs.RegisterRoutes(v1, auth)
	}
	if r.jobs != nil {
		r.jobs.RegisterRoutes(v1)
	}
	if r.ws != nil {
		v1.Get("/ws/runs", r.ws.HandleRunsWS)
	}
}
