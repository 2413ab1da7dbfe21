// Package forecast holds the model provider adapters used by the tournament:
// a closed capability contract (fit, score, forecast), the ordered registry
// of adapters and the Forecaster that retrains the winner.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ledgercast/ledgercast/internal/analytics"
	"github.com/ledgercast/ledgercast/internal/analytics/diagnostics"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrInsufficientData is returned when a family cannot be fitted on so few months
	ErrInsufficientData = errors.New("insufficient data")
	// ErrNumerical is returned for singular systems and non-finite scores
	ErrNumerical = errors.New("numerical failure")
	// ErrOptimizer is returned when parameter estimation does not produce a usable point
	ErrOptimizer = errors.New("optimizer failure")
	// ErrDegenerateSeries is returned for series without variance
	ErrDegenerateSeries = errors.New("degenerate series")
	// ErrInvalidHorizon is returned for horizons below one month
	ErrInvalidHorizon = errors.New("invalid horizon")
)

// Family tags a group of related techniques
type Family string

const (
	FamilySeasonal     Family = "seasonal"
	FamilyARIMA        Family = "arima"
	FamilySmoothing    Family = "smoothing"
	FamilyCurve        Family = "curve"
	FamilySequence     Family = "sequence"
	FamilyExogenous    Family = "exogenous"
	FamilyMultivariate Family = "multivariate"
	FamilyNaive        Family = "naive"
)

// Metric names the scale of a score. Scores of different metrics are ranked
// together even though they are not on a common scale.
type Metric string

const (
	MetricAIC           Metric = "aic"
	MetricMSE           Metric = "mse"
	MetricValidationMSE Metric = "validation_mse"
	MetricNone          Metric = "none"
)

// Descriptor describes a fitted configuration for display
type Descriptor struct {
	Order         string             `json:"order"`
	SeasonalOrder string             `json:"seasonal_order"`
	Parameters    map[string]float64 `json:"parameters,omitempty"`
}

// Result is a forecast over consecutive future months
type Result struct {
	Dates  []time.Time
	Values []float64
	Lower  []float64
	Upper  []float64
}

// Len returns the horizon length
func (r Result) Len() int {
	return len(r.Values)
}

// FittedModel is a model trained on one series
type FittedModel interface {
	// Score is the goodness of fit; lower is better
	Score() float64
	// Metric is the scale Score is expressed in
	Metric() Metric
	// Descriptor describes the configuration
	Descriptor() Descriptor
	// Forecast predicts the horizon months after the series
	Forecast(horizon int, confidence float64) (Result, error)
	// InSample returns one value per month of the training series, NaN where
	// the model has no fitted value. ok is false when the family does not
	// expose in-sample fits at all.
	InSample() (fitted []float64, ok bool)
}

// Outcome is the typed result of Adapter.Fit: either a model or an error
type Outcome struct {
	Model FittedModel
	Err   error
}

// Adapter is one forecasting technique
type Adapter interface {
	// Name is the unique display name, e.g. "ARIMA(1,1,1)"
	Name() string
	// Family is the technique group
	Family() Family
	// Applicable reports whether the technique competes for this series
	Applicable(report diagnostics.Report) bool
	// Fit trains on the whole series. It never panics.
	Fit(ctx context.Context, s analytics.MonthlySeries) Outcome
}

// Condition gates an adapter on the series diagnostics
type Condition func(report diagnostics.Report) bool

// Always makes an adapter compete on every series
func Always(diagnostics.Report) bool { return true }

// WhenSeasonal selects series with a detected yearly pattern
func WhenSeasonal(r diagnostics.Report) bool { return r.HasSeasonality }

// WhenStationary selects series that passed the unit-root test
func WhenStationary(r diagnostics.Report) bool { return r.IsStationary }

// WhenNonStationary selects series that did not pass the unit-root test
func WhenNonStationary(r diagnostics.Report) bool { return !r.IsStationary }

// guardedFit runs fit and turns panics, errors and non-finite scores into a
// failed Outcome.
func guardedFit(ctx context.Context, name string, fit func() (FittedModel, error)) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Err: fmt.Errorf("%w: %s panicked: %v", ErrNumerical, name, r)}
		}
	}()

	if err := ctx.Err(); err != nil {
		return Outcome{Err: err}
	}

	model, err := fit()
	if err != nil {
		return Outcome{Err: err}
	}
	score := model.Score()
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return Outcome{Err: fmt.Errorf("%w: %s score is %v", ErrNumerical, name, score)}
	}
	return Outcome{Model: model}
}

// zScore returns the two-sided normal quantile for a confidence level.
func zScore(confidence float64) float64 {
	if confidence <= 0 || confidence >= 1 {
		confidence = 0.95
	}
	return distuv.UnitNormal.Quantile((1 + confidence) / 2)
}

// buildResult assembles a Result from point forecasts and their standard errors.
func buildResult(last time.Time, values, stdErr []float64, confidence float64) Result {
	z := zScore(confidence)
	result := Result{
		Dates:  make([]time.Time, len(values)),
		Values: make([]float64, len(values)),
		Lower:  make([]float64, len(values)),
		Upper:  make([]float64, len(values)),
	}
	for h, v := range values {
		margin := z * stdErr[h]
		result.Dates[h] = analytics.AddMonths(last, h+1)
		result.Values[h] = v
		result.Lower[h] = v - margin
		result.Upper[h] = v + margin
	}
	return result
}

func checkHorizon(horizon int) error {
	if horizon < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidHorizon, horizon)
	}
	return nil
}

// CalculateMSE calculates Mean Squared Error over positions where both values are finite
func CalculateMSE(actual, predicted []float64) float64 {
	if len(actual) != len(predicted) || len(actual) == 0 {
		return 0
	}

	sum := 0.0
	count := 0
	for i := range actual {
		if math.IsNaN(predicted[i]) {
			continue
		}
		diff := actual[i] - predicted[i]
		sum += diff * diff
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// CalculateMAE is the mean absolute error in the series' own units over the
// months predicted has a value for. The window models report it next to
// their scaled validation score.
func CalculateMAE(actual, predicted []float64) float64 {
	if len(actual) != len(predicted) {
		return 0
	}
	var total float64
	var months int
	for i, p := range predicted {
		if math.IsNaN(p) {
			continue
		}
		total += math.Abs(actual[i] - p)
		months++
	}
	if months == 0 {
		return 0
	}
	return total / float64(months)
}

// nanSlice returns n NaN values
func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
