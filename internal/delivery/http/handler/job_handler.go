package handler

import (
	"errors"
	"strconv"

	"jobs-etl/internal/pkg/response"
	"jobs-etl/internal/repository"

	"github.com/gofiber/fiber/v3"
)

type JobHandler struct {
	repo repository.JobRepository
}

func NewJobHandler(repo repository.JobRepository) *JobHandler {
	return &JobHandler{repo: repo}
}

func (h *JobHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/jobs/stats", h.Stats)
	r.Get("/jobs/:id", h.Get)
}

func (h *JobHandler) Get(c fiber.Ctx) error {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return response.Error(c, fiber.StatusBadRequest, "invalid job id", nil)
	}

	rec, err := h.repo.GetRecord(c.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			return response.Error(c, fiber.StatusNotFound, "job not found", nil)
		}
		return err
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, rec)
}

// Stats returns the row count of every schema table.
func (h *JobHandler) Stats(c fiber.Ctx) error {
	counts, err := h.repo.CountRows(c.Context())
	if err != nil {
		return err
	}
	return response.Success(c, fiber.StatusOK, response.MessageOK, counts)
}
