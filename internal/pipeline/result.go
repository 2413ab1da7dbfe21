package pipeline

import (
	"time"

	"github.com/ledgercast/ledgercast/internal/analytics/anomaly"
	"github.com/ledgercast/ledgercast/internal/analytics/diagnostics"
)

// Status of a pipeline run
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// ModelInfo describes the model that produced the forecast
type ModelInfo struct {
	Name          string             `json:"name"`
	Family        string             `json:"family"`
	Order         string             `json:"order"`
	SeasonalOrder string             `json:"seasonal_order"`
	Score         *float64           `json:"score"`
	Metric        string             `json:"metric"`
	Parameters    map[string]float64 `json:"parameters,omitempty"`
	Fallback      bool               `json:"fallback"`
}

// DurationInfo describes the validated horizon
type DurationInfo struct {
	RequestedMonths string  `json:"requested_months"`
	ValidatedMonths int     `json:"validated_months"`
	Code            string  `json:"code"`
	Rationale       string  `json:"rationale"`
	SparsityWarning bool    `json:"sparsity_warning"`
	Density         float64 `json:"density"`
	SafeMonths      int     `json:"safe_months"`
}

// History is the observed series
type History struct {
	Dates  []string  `json:"dates"`
	Values []float64 `json:"values"`
}

// Forecast is the projected series with its interval
type Forecast struct {
	Dates  []string  `json:"dates"`
	Values []float64 `json:"values"`
	Lower  []float64 `json:"lower"`
	Upper  []float64 `json:"upper"`
}

// RankEntry is one tournament candidate
type RankEntry struct {
	Rank   int      `json:"rank"`
	Name   string   `json:"name"`
	Family string   `json:"family"`
	Score  *float64 `json:"score"`
	Metric string   `json:"metric,omitempty"`
	Status string   `json:"status"`
	Reason string   `json:"reason,omitempty"`
}

// Result is the record of one run
type Result struct {
	Status       Status              `json:"status"`
	ModelInfo    *ModelInfo          `json:"model_info,omitempty"`
	DurationInfo *DurationInfo       `json:"duration_info,omitempty"`
	Diagnostics  *diagnostics.Report `json:"diagnostics,omitempty"`
	History      *History            `json:"history,omitempty"`
	Forecast     *Forecast           `json:"forecast,omitempty"`
	Anomalies    []anomaly.Record    `json:"anomalies"`
	Ranking      []RankEntry         `json:"ranking"`
	Explanations []string            `json:"explanations"`
	ErrorMessage string              `json:"error_message,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
	ElapsedMs    int64               `json:"elapsed_ms"`
	TournamentMs int64               `json:"tournament_ms,omitempty"`

	// Err is the failure behind an error record
	Err error `json:"-"`
}

// Succeeded reports whether the run produced a forecast
func (r *Result) Succeeded() bool {
	return r != nil && r.Status == StatusSuccess
}
