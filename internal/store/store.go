// Package store persists prediction results for history and lookup.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ledgercast/ledgercast/internal/config"
)

// ErrNotFound is returned when no prediction has the requested id
var ErrNotFound = errors.New("prediction not found")

const (
	// DefaultListLimit applies when List is called with a non-positive limit
	DefaultListLimit = 20
	// MaxListLimit caps List results
	MaxListLimit = 500
)

// Prediction is one stored pipeline result. Payload holds the full result
// record as JSON, anomalies included.
type Prediction struct {
	ID              string          `json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	ModelName       string          `json:"model_name"`
	ValidatedMonths int             `json:"validated_months"`
	Rationale       string          `json:"rationale"`
	AnomalyCount    int             `json:"anomaly_count"`
	Payload         json.RawMessage `json:"payload"`
}

// Stats summarizes the stored predictions
type Stats struct {
	Predictions int64 `json:"predictions"`
	Anomalies   int64 `json:"anomalies"`
}

// Store persists predictions
type Store interface {
	Save(ctx context.Context, p Prediction) error
	Get(ctx context.Context, id string) (Prediction, error)
	// List returns the newest predictions first
	List(ctx context.Context, limit int) ([]Prediction, error)
	Stats(ctx context.Context) (Stats, error)
	Close()
}

// New creates the store selected by configuration
func New(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	switch strings.ToLower(cfg.Type) {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		return OpenPostgres(ctx, cfg.DSN, cfg.MaxConns)
	default:
		return nil, fmt.Errorf("unsupported store type: %s (supported: memory, postgres)", cfg.Type)
	}
}

// clampLimit normalizes a requested list size
func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
