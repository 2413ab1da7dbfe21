package models

import "github.com/shopspring/decimal"

// SeriesPoint is one month of a submitted series. Date is "YYYY-MM-DD"
// (first of the month) or "YYYY-MM".
type SeriesPoint struct {
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
}

// Transaction is one raw dated amount, aggregated per month before
// forecasting. Amount accepts a JSON number or a decimal string.
type Transaction struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// PredictionRequest represents a prediction request. Exactly one of Series
// and Transactions must be set. Months is optional; when absent the horizon
// is chosen automatically.
type PredictionRequest struct {
	Series       []SeriesPoint `json:"series,omitempty"`
	Transactions []Transaction `json:"transactions,omitempty"`
	Months       interface{}   `json:"months,omitempty"`
}
