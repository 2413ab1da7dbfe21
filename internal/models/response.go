package models

// HealthResponse represents health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// DurationPolicy describes how forecast horizons are sized
type DurationPolicy struct {
	MinMonths                int     `json:"min_months"`
	MaxMonths                int     `json:"max_months"`
	ObservationsPerParameter int     `json:"observations_per_parameter"`
	SparsityThreshold        float64 `json:"sparsity_threshold"`
	MaxRequestMonths         int     `json:"max_request_months"`
}

// InfoResponse represents service info response
type InfoResponse struct {
	Name     string         `json:"name"`
	Version  string         `json:"version"`
	Models   []string       `json:"models"`
	Duration DurationPolicy `json:"duration"`
}

// PredictionSummary is a stored prediction without its payload
type PredictionSummary struct {
	ID              string `json:"id"`
	CreatedAt       string `json:"created_at"`
	ModelName       string `json:"model_name"`
	ValidatedMonths int    `json:"validated_months"`
	Rationale       string `json:"rationale"`
	AnomalyCount    int    `json:"anomaly_count"`
}

// PredictionListResponse represents list predictions response
type PredictionListResponse struct {
	Predictions []PredictionSummary `json:"predictions"`
	Count       int                 `json:"count"`
}

// StatsResponse represents prediction totals
type StatsResponse struct {
	Predictions int64 `json:"predictions"`
	Anomalies   int64 `json:"anomalies"`
}

// ErrorResponse represents error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Path    string                 `json:"path,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}
