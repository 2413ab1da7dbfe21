package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ledgercast/ledgercast/internal/models"
	"github.com/ledgercast/ledgercast/internal/services"
	"github.com/ledgercast/ledgercast/internal/store"
)

// CreatePrediction runs the forecasting pipeline on the posted series
// POST /v1/predictions
func (h *Handler) CreatePrediction(c *fiber.Ctx) error {
	var body models.PredictionRequest
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: models.ErrorDetail{
				Code:    services.CodeInvalidRequest,
				Message: "Failed to parse JSON body",
				Details: map[string]interface{}{"error": err.Error()},
			},
		})
	}

	prediction, err := h.predictions.Predict(c.UserContext(), toServiceRequest(&body))
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(prediction)
}

// GetPrediction returns one stored prediction
// GET /v1/predictions/:id
func (h *Handler) GetPrediction(c *fiber.Ctx) error {
	prediction, err := h.predictions.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(prediction)
}

// ListPredictions returns the newest predictions
// GET /v1/predictions?limit=20
func (h *Handler) ListPredictions(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", store.DefaultListLimit)
	if limit < 1 || limit > store.MaxListLimit {
		return services.NewServiceErrorf(services.CodeInvalidRequest,
			"limit must be between 1 and %d", store.MaxListLimit)
	}

	records, err := h.predictions.List(c.UserContext(), limit)
	if err != nil {
		return err
	}

	summaries := make([]models.PredictionSummary, len(records))
	for i, r := range records {
		summaries[i] = models.PredictionSummary{
			ID:              r.ID,
			CreatedAt:       r.CreatedAt.UTC().Format(time.RFC3339),
			ModelName:       r.ModelName,
			ValidatedMonths: r.ValidatedMonths,
			Rationale:       r.Rationale,
			AnomalyCount:    r.AnomalyCount,
		}
	}

	return c.JSON(models.PredictionListResponse{
		Predictions: summaries,
		Count:       len(summaries),
	})
}

// Stats returns prediction and anomaly totals
// GET /v1/stats
func (h *Handler) Stats(c *fiber.Ctx) error {
	stats, err := h.predictions.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(models.StatsResponse{
		Predictions: stats.Predictions,
		Anomalies:   stats.Anomalies,
	})
}

func toServiceRequest(body *models.PredictionRequest) *services.PredictRequest {
	req := &services.PredictRequest{Months: body.Months}
	for _, p := range body.Series {
		req.Series = append(req.Series, services.SeriesPoint{Date: p.Date, Amount: p.Amount})
	}
	for _, tx := range body.Transactions {
		req.Transactions = append(req.Transactions, services.TransactionRecord{Date: tx.Date, Amount: tx.Amount})
	}
	return req
}
