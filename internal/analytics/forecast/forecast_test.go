package forecast

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/ledgercast/ledgercast/internal/analytics"
)

type stubModel struct {
	score float64
}

func (m stubModel) Score() float64                        { return m.score }
func (m stubModel) Metric() Metric                        { return MetricAIC }
func (m stubModel) Descriptor() Descriptor                { return Descriptor{} }
func (m stubModel) Forecast(int, float64) (Result, error) { return Result{}, nil }
func (m stubModel) InSample() ([]float64, bool)           { return nil, false }

func TestZScore(t *testing.T) {
	if z := zScore(0.95); math.Abs(z-1.959964) > 1e-5 {
		t.Errorf("Expected z=1.96 for 95%%, got %v", z)
	}
	if z := zScore(0.80); math.Abs(z-1.281552) > 1e-5 {
		t.Errorf("Expected z=1.28 for 80%%, got %v", z)
	}
	if z := zScore(1.5); math.Abs(z-1.959964) > 1e-5 {
		t.Errorf("Expected invalid confidence to fall back to 95%%, got %v", z)
	}
}

func TestBuildResult(t *testing.T) {
	last := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	r := buildResult(last, []float64{10, 20, 30}, []float64{0, 1, 2}, 0.95)

	expected := []time.Time{
		time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC),
	}
	for i, d := range expected {
		if !r.Dates[i].Equal(d) {
			t.Errorf("Expected date %v, got %v", d, r.Dates[i])
		}
	}
	if r.Lower[0] != 10 || r.Upper[0] != 10 {
		t.Errorf("Expected zero-width bounds at step 0, got [%v, %v]", r.Lower[0], r.Upper[0])
	}
	if math.Abs((r.Upper[2]-r.Lower[2])-2*2*1.959964) > 1e-4 {
		t.Errorf("Unexpected interval width %v", r.Upper[2]-r.Lower[2])
	}
}

func TestGuardedFit_RecoversPanic(t *testing.T) {
	out := guardedFit(context.Background(), "boom", func() (FittedModel, error) {
		panic("index out of range")
	})
	if !errors.Is(out.Err, ErrNumerical) {
		t.Errorf("Expected ErrNumerical from panic, got %v", out.Err)
	}
	if out.Model != nil {
		t.Error("Expected no model after panic")
	}
}

func TestGuardedFit_NonFiniteScore(t *testing.T) {
	for _, score := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		out := guardedFit(context.Background(), "bad", func() (FittedModel, error) {
			return stubModel{score: score}, nil
		})
		if !errors.Is(out.Err, ErrNumerical) {
			t.Errorf("Expected ErrNumerical for score %v, got %v", score, out.Err)
		}
	}
}

func TestGuardedFit_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	out := guardedFit(ctx, "late", func() (FittedModel, error) {
		called = true
		return stubModel{}, nil
	})
	if !errors.Is(out.Err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", out.Err)
	}
	if called {
		t.Error("Expected fit not to run on a cancelled context")
	}
}

func TestCalculateMSE(t *testing.T) {
	actual := []float64{1, 2, 3, 4}
	predicted := []float64{math.NaN(), 2, 5, 4}

	if mse := CalculateMSE(actual, predicted); math.Abs(mse-4.0/3.0) > 1e-12 {
		t.Errorf("Expected MSE 1.333, got %v", mse)
	}
	if mae := CalculateMAE(actual, predicted); math.Abs(mae-2.0/3.0) > 1e-12 {
		t.Errorf("Expected MAE 0.667, got %v", mae)
	}
	if mse := CalculateMSE([]float64{1}, []float64{1, 2}); mse != 0 {
		t.Errorf("Expected 0 for mismatched lengths, got %v", mse)
	}
}

func TestConditions(t *testing.T) {
	var r = diagnosticsReport(true, false)
	if !WhenStationary(r) || WhenNonStationary(r) || WhenSeasonal(r) {
		t.Error("Unexpected conditions for a stationary non-seasonal report")
	}
	r = diagnosticsReport(false, true)
	if WhenStationary(r) || !WhenNonStationary(r) || !WhenSeasonal(r) {
		t.Error("Unexpected conditions for a non-stationary seasonal report")
	}
	if !Always(r) {
		t.Error("Expected Always to hold")
	}
}

func TestNaiveAdapter(t *testing.T) {
	s := mustSeries(t, []float64{5, 7, 9})
	m := mustFit(t, NewNaiveAdapter(), s)

	if m.Metric() != MetricNone || m.Score() != 0 {
		t.Errorf("Expected metric none and score 0, got %s %v", m.Metric(), m.Score())
	}
	r, err := m.Forecast(4, 0.95)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	checkResult(t, s, r, 4)
	for h := range r.Values {
		if r.Values[h] != 9 || r.Lower[h] != 9 || r.Upper[h] != 9 {
			t.Errorf("Expected flat 9 with zero-width bounds, got %v [%v, %v]", r.Values[h], r.Lower[h], r.Upper[h])
		}
	}

	fitted, ok := m.InSample()
	if !ok {
		t.Fatal("Expected in-sample fit for 3 months")
	}
	if !math.IsNaN(fitted[0]) || fitted[1] != 5 || fitted[2] != 7 {
		t.Errorf("Expected previous-month fit, got %v", fitted)
	}

	if _, err := m.Forecast(0, 0.95); !errors.Is(err, ErrInvalidHorizon) {
		t.Errorf("Expected ErrInvalidHorizon, got %v", err)
	}
}

func TestNaiveAdapter_SingleMonth(t *testing.T) {
	s := mustSeries(t, []float64{42})
	m := mustFit(t, NewNaiveAdapter(), s)
	if _, ok := m.InSample(); ok {
		t.Error("Expected no in-sample fit for a single month")
	}

	out := NewNaiveAdapter().Fit(context.Background(), analytics.MonthlySeries{})
	if !errors.Is(out.Err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData on empty series, got %v", out.Err)
	}
}
