package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgercast/ledgercast/internal/analytics"
	"github.com/ledgercast/ledgercast/internal/analytics/diagnostics"
)

// NaiveName is the name reported when the constant fallback is used
const NaiveName = "naive"

// NaiveAdapter repeats the last observed value. It is the fallback when no
// registered adapter produces a usable model and is never registered itself.
type NaiveAdapter struct{}

// NewNaiveAdapter creates the fallback adapter
func NewNaiveAdapter() *NaiveAdapter {
	return &NaiveAdapter{}
}

func (a *NaiveAdapter) Name() string { return NaiveName }

func (a *NaiveAdapter) Family() Family { return FamilyNaive }

func (a *NaiveAdapter) Applicable(diagnostics.Report) bool { return true }

func (a *NaiveAdapter) Fit(ctx context.Context, s analytics.MonthlySeries) Outcome {
	return guardedFit(ctx, NaiveName, func() (FittedModel, error) {
		if s.IsEmpty() {
			return nil, fmt.Errorf("%s: %w: empty series", NaiveName, ErrInsufficientData)
		}
		return &naiveModel{values: s.Values(), last: s.Last().Month}, nil
	})
}

type naiveModel struct {
	values []float64
	last   time.Time
}

func (m *naiveModel) Score() float64 { return 0 }

func (m *naiveModel) Metric() Metric { return MetricNone }

func (m *naiveModel) Descriptor() Descriptor {
	return Descriptor{Order: "constant", Parameters: map[string]float64{"level": m.values[len(m.values)-1]}}
}

// Forecast is flat at the last value with zero-width bounds
func (m *naiveModel) Forecast(horizon int, _ float64) (Result, error) {
	if err := checkHorizon(horizon); err != nil {
		return Result{}, err
	}
	values := make([]float64, horizon)
	level := m.values[len(m.values)-1]
	for h := range values {
		values[h] = level
	}
	return buildResult(m.last, values, make([]float64, horizon), 0.95), nil
}

// InSample predicts each month with the month before it
func (m *naiveModel) InSample() ([]float64, bool) {
	fitted := nanSlice(len(m.values))
	for t := 1; t < len(m.values); t++ {
		fitted[t] = m.values[t-1]
	}
	return fitted, len(m.values) > 1
}
