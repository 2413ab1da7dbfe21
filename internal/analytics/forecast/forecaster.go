package forecast

import (
	"context"
	"fmt"

	"github.com/ledgercast/ledgercast/internal/analytics"
)

// Trained is the model that produced a forecast
type Trained struct {
	FittedModel
	Name   string
	Family Family
	// Fallback is set when the naive model replaced the requested winner
	Fallback bool
}

// Forecaster retrains the tournament winner on the full series and projects it
type Forecaster struct {
	confidence float64
	naive      *NaiveAdapter
}

// NewForecaster creates a Forecaster producing intervals at the given
// confidence level (0.95 when out of range)
func NewForecaster(confidence float64) *Forecaster {
	if confidence <= 0 || confidence >= 1 {
		confidence = 0.95
	}
	return &Forecaster{confidence: confidence, naive: NewNaiveAdapter()}
}

// Confidence returns the interval confidence level
func (f *Forecaster) Confidence() float64 {
	return f.confidence
}

// Run forecasts months steps after the last observation
func (f *Forecaster) Run(ctx context.Context, s analytics.MonthlySeries, winner Adapter, months int, trace *analytics.Trace) (Trained, Result, error) {
	if trace == nil {
		trace = analytics.NewTrace(nil)
	}
	if err := checkHorizon(months); err != nil {
		return Trained{}, Result{}, err
	}
	if s.IsEmpty() {
		return Trained{}, Result{}, fmt.Errorf("%w: empty series", ErrInsufficientData)
	}

	if s.IsConstant() {
		trace.Add("forecaster: series has a single distinct value %.2f, skipping retraining and using %s", s.Last().Amount, NaiveName)
		return f.runNaive(ctx, s, months, false)
	}

	if winner == nil {
		trace.Add("forecaster: no winning model, using %s fallback for %d months", NaiveName, months)
		return f.runNaive(ctx, s, months, true)
	}
	if winner.Name() == NaiveName {
		trace.Add("forecaster: using %s fallback selected by the tournament for %d months", NaiveName, months)
		return f.runNaive(ctx, s, months, false)
	}

	trace.Add("forecaster: retraining %s on %d months", winner.Name(), s.Len())
	out := winner.Fit(ctx, s)
	if out.Err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Trained{}, Result{}, ctxErr
		}
		trace.Warn("forecaster: retraining %s failed: %v; using %s", winner.Name(), out.Err, NaiveName)
		return f.runNaive(ctx, s, months, true)
	}

	result, err := out.Model.Forecast(months, f.confidence)
	if err != nil {
		trace.Warn("forecaster: %s forecast failed: %v; using %s", winner.Name(), err, NaiveName)
		return f.runNaive(ctx, s, months, true)
	}
	trace.Add("forecaster: %s projected %d months at %.0f%% confidence", winner.Name(), months, f.confidence*100)

	return Trained{FittedModel: out.Model, Name: winner.Name(), Family: winner.Family()}, result, nil
}

func (f *Forecaster) runNaive(ctx context.Context, s analytics.MonthlySeries, months int, fallback bool) (Trained, Result, error) {
	out := f.naive.Fit(ctx, s)
	if out.Err != nil {
		return Trained{}, Result{}, out.Err
	}
	result, err := out.Model.Forecast(months, f.confidence)
	if err != nil {
		return Trained{}, Result{}, err
	}
	return Trained{FittedModel: out.Model, Name: NaiveName, Family: FamilyNaive, Fallback: fallback}, result, nil
}
