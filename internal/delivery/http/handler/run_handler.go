package handler

import (
	"context"

	"jobs-etl/internal/pkg/response"
	"jobs-etl/internal/scheduler"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type RunLauncher interface {
	Launch(ctx context.Context) (uuid.UUID, error)
}

type LatestRunSource interface {
	Latest(ctx context.Context) (scheduler.RunReport, bool, error)
}

type RunHandler struct {
	launcher RunLauncher
	latest   LatestRunSource
}

func NewRunHandler(launcher RunLauncher, latest LatestRunSource) *RunHandler {
	return &RunHandler{launcher: launcher, latest: latest}
}

// RegisterRoutes mounts the run routes on r. auth, when set, guards the trigger.
func (h *RunHandler) RegisterRoutes(r fiber.Router, auth fiber.Handler) {
	if r == nil {
		return
	}
	if auth != nil {
		r.Post("/runs", auth, h.Trigger)
	} else {
		r.Post("/runs", h.Trigger)
	}
	r.Get("/runs/latest", h.Latest)
}

// Trigger starts a run in the background. A run already in progress is
// rejected with 409 by the error middleware.
func (h *RunHandler) Trigger(c fiber.Ctx) error {
	id, err := h.launcher.Launch(c.Context())
	if err != nil {
		return err
	}
	return response.Success(c, fiber.StatusAccepted, response.MessageAccepted, fiber.Map{"run_id": id.String()})
}

func (h *RunHandler) Latest(c fiber.Ctx) error {
	rep, ok, err := h.latest.Latest(c.Context())
	if err != nil {
		return response.Error(c, fiber.StatusInternalServerError, "failed to read latest run", nil)
	}
	if !ok {
		return response.Error(c, fiber.StatusNotFound, "no run recorded yet", nil)
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, rep)
}
