// Package handlers implements the HTTP endpoints of the prediction API.
package handlers

import (
	"github.com/ledgercast/ledgercast/internal/logging"
	"github.com/ledgercast/ledgercast/internal/services"
)

// Version is reported by /health and /info
var Version = "1.0.0"

// Handler contains all HTTP handlers
type Handler struct {
	logger      *logging.Logger
	predictions *services.PredictionService
}

// New creates a new handler instance
func New(logger *logging.Logger, predictions *services.PredictionService) *Handler {
	return &Handler{
		logger:      logger,
		predictions: predictions,
	}
}
