package forecast

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestWindows(t *testing.T) {
	inputs, targets := windows([]float64{1, 2, 3, 4, 5}, 3)
	if len(inputs) != 2 || len(targets) != 2 {
		t.Fatalf("Expected 2 samples, got %d", len(inputs))
	}
	if inputs[1][0] != 2 || inputs[1][2] != 4 || targets[1] != 5 {
		t.Errorf("Unexpected second sample %v -> %v", inputs[1], targets[1])
	}
}

func TestWindowAdapters_FitAndForecast(t *testing.T) {
	values := seasonalValues(48, 1000, 100)
	s := mustSeries(t, values)

	for _, a := range []*WindowAdapter{NewWindowLinearAdapter(42), NewWindowMLPAdapter(42)} {
		t.Run(a.Name(), func(t *testing.T) {
			m := mustFit(t, a, s)
			if m.Metric() != MetricValidationMSE {
				t.Errorf("Expected validation MSE metric, got %s", m.Metric())
			}
			if m.Score() < 0 || m.Score() > 0.25 {
				t.Errorf("Expected scaled validation MSE in [0, 0.25], got %v", m.Score())
			}

			r, err := m.Forecast(6, 0.95)
			if err != nil {
				t.Fatalf("Forecast failed: %v", err)
			}
			checkResult(t, s, r, 6)

			fitted, ok := m.InSample()
			if !ok {
				t.Fatal("Expected in-sample values")
			}
			if !math.IsNaN(fitted[11]) || math.IsNaN(fitted[12]) {
				t.Errorf("Expected in-sample fit to start after the look-back window")
			}

			mae, ok := m.Descriptor().Parameters["in_sample_mae"]
			if !ok {
				t.Fatal("Expected in_sample_mae parameter")
			}
			if want := CalculateMAE(values, fitted); mae != want || mae <= 0 {
				t.Errorf("Expected in-sample MAE %v, got %v", want, mae)
			}
		})
	}
}

func TestWindowAdapter_Deterministic(t *testing.T) {
	s := mustSeries(t, seasonalValues(40, 500, 80))
	first := mustFit(t, NewWindowMLPAdapter(7), s)
	second := mustFit(t, NewWindowMLPAdapter(7), s)

	if first.Score() != second.Score() {
		t.Errorf("Expected identical scores for the same seed, got %v and %v", first.Score(), second.Score())
	}
	r1, _ := first.Forecast(3, 0.95)
	r2, _ := second.Forecast(3, 0.95)
	for h := range r1.Values {
		if r1.Values[h] != r2.Values[h] {
			t.Errorf("Expected identical forecasts at step %d", h)
		}
	}
}

func TestWindowAdapter_Errors(t *testing.T) {
	out := NewWindowLinearAdapter(1).Fit(context.Background(), mustSeries(t, seasonalValues(23, 100, 10)))
	if !errors.Is(out.Err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData for 23 months, got %v", out.Err)
	}

	flat := make([]float64, 30)
	for i := range flat {
		flat[i] = 7
	}
	out = NewWindowLinearAdapter(1).Fit(context.Background(), mustSeries(t, flat))
	if !errors.Is(out.Err, ErrDegenerateSeries) {
		t.Errorf("Expected ErrDegenerateSeries for a constant series, got %v", out.Err)
	}
}
