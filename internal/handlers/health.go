package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgercast/ledgercast/internal/models"
)

// Health handles health check requests
func (h *Handler) Health(c *fiber.Ctx) error {
	return c.JSON(models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   Version,
	})
}

// Info describes the competing models and the horizon policy
// GET /info
func (h *Handler) Info(c *fiber.Ctx) error {
	p := h.predictions.Pipeline()
	opts := p.DurationOptions()

	return c.JSON(models.InfoResponse{
		Name:    "ledgercast",
		Version: Version,
		Models:  p.Models(),
		Duration: models.DurationPolicy{
			MinMonths:                opts.MinMonths,
			MaxMonths:                opts.MaxMonths,
			ObservationsPerParameter: opts.ObservationsPerParameter,
			SparsityThreshold:        opts.SparsityThreshold,
			MaxRequestMonths:         h.predictions.MaxRequestMonths(),
		},
	})
}

// NotFound handles 404 errors
func (h *Handler) NotFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
		Error: models.ErrorDetail{
			Code:    "NOT_FOUND",
			Message: "Route not found",
			Path:    c.Path(),
		},
	})
}
