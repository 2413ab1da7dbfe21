package forecast

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestPolynomials(t *testing.T) {
	diff := differencingPolynomial(1, 1, 12)
	if len(diff) != 14 {
		t.Fatalf("Expected degree 13 polynomial, got %d coefficients", len(diff))
	}
	expected := map[int]float64{0: 1, 1: -1, 12: -1, 13: 1}
	for i, c := range diff {
		if c != expected[i] {
			t.Errorf("Expected coefficient %v at lag %d, got %v", expected[i], i, c)
		}
	}

	out := applyPolynomial([]float64{1, -1}, []float64{1, 3, 6})
	if len(out) != 2 || out[0] != 2 || out[1] != 3 {
		t.Errorf("Expected first differences [2 3], got %v", out)
	}
}

func TestPsiWeights(t *testing.T) {
	psi := psiWeights(arPolynomial([]float64{0.5}, 1), []float64{1}, 4)
	for j, want := range []float64{1, 0.5, 0.25, 0.125} {
		if math.Abs(psi[j]-want) > 1e-12 {
			t.Errorf("Expected psi[%d]=%v, got %v", j, want, psi[j])
		}
	}

	walk := psiWeights([]float64{1, -1}, []float64{1}, 5)
	for j, v := range walk {
		if v != 1 {
			t.Errorf("Expected random walk psi[%d]=1, got %v", j, v)
		}
	}
}

func TestARIMAAdapter_AR1Recovery(t *testing.T) {
	s := mustSeries(t, ar1Values(200, 1000, 0.6))
	a := NewARIMAAdapter("AR(1)", FamilyARIMA, Order{P: 1}, SeasonalOrder{}, WhenStationary)
	m := mustFit(t, a, s)

	params := m.Descriptor().Parameters
	if phi := params["ar.L1"]; math.Abs(phi-0.6) > 0.2 {
		t.Errorf("Expected ar.L1 near 0.6, got %v", phi)
	}
	if c := params["const"]; math.Abs(c-1000) > 10 {
		t.Errorf("Expected const near 1000, got %v", c)
	}
	if m.Metric() != MetricAIC {
		t.Errorf("Expected AIC metric, got %s", m.Metric())
	}
	if m.Descriptor().Order != "(1,0,0)" || m.Descriptor().SeasonalOrder != "" {
		t.Errorf("Unexpected descriptor %+v", m.Descriptor())
	}

	r, err := m.Forecast(60, 0.95)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	checkResult(t, s, r, 60)
	if math.Abs(r.Values[59]-params["const"]) > 1 {
		t.Errorf("Expected long-horizon forecast to revert to the mean %v, got %v", params["const"], r.Values[59])
	}

	fitted, ok := m.InSample()
	if !ok || len(fitted) != 200 {
		t.Fatalf("Expected 200 in-sample values, got %d", len(fitted))
	}
	if !math.IsNaN(fitted[0]) || math.IsNaN(fitted[1]) {
		t.Errorf("Expected fit to start at month 1, got %v %v", fitted[0], fitted[1])
	}
}

func TestARIMAAdapter_IntervalsWiden(t *testing.T) {
	s := mustSeries(t, randomWalk(60, 1000, 5))
	a := NewARIMAAdapter("ARIMA(1,1,1)", FamilyARIMA, Order{P: 1, D: 1, Q: 1}, SeasonalOrder{}, WhenNonStationary)
	m := mustFit(t, a, s)

	r, err := m.Forecast(12, 0.95)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	checkResult(t, s, r, 12)
	for h := 1; h < 12; h++ {
		if r.Upper[h]-r.Lower[h] < r.Upper[h-1]-r.Lower[h-1]-1e-9 {
			t.Errorf("Expected interval to widen at step %d", h)
		}
	}

	if _, ok := m.Descriptor().Parameters["const"]; ok {
		t.Error("Expected no constant for a differenced model")
	}
}

func TestARIMAAdapter_Seasonal(t *testing.T) {
	values := seasonalValues(48, 1000, 100)
	s := mustSeries(t, values)
	a := NewARIMAAdapter("SARIMA(1,0,1)(1,1,1,12)", FamilySeasonal, Order{P: 1, Q: 1}, SeasonalOrder{P: 1, D: 1, Q: 1, Period: 12}, WhenSeasonal)
	m := mustFit(t, a, s)

	if m.Descriptor().SeasonalOrder != "(1,1,1,12)" {
		t.Errorf("Expected seasonal order (1,1,1,12), got %s", m.Descriptor().SeasonalOrder)
	}

	r, err := m.Forecast(12, 0.95)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	checkResult(t, s, r, 12)
	for h := 0; h < 12; h++ {
		lastYear := values[len(values)-12+h]
		if math.Abs(r.Values[h]-lastYear) > 50 {
			t.Errorf("Expected step %d near last year's %v, got %v", h, lastYear, r.Values[h])
		}
	}

	fitted, _ := m.InSample()
	if !math.IsNaN(fitted[24]) || math.IsNaN(fitted[25]) {
		t.Errorf("Expected in-sample fit to start at month 25")
	}
}

func TestARIMAAdapter_InsufficientData(t *testing.T) {
	a := NewARIMAAdapter("AR(1)", FamilyARIMA, Order{P: 1}, SeasonalOrder{}, nil)
	out := a.Fit(context.Background(), mustSeries(t, []float64{1, 5, 3}))
	if !errors.Is(out.Err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData, got %v", out.Err)
	}

	sarima := NewARIMAAdapter("SARIMA", FamilySeasonal, Order{P: 1, Q: 1}, SeasonalOrder{P: 1, D: 1, Q: 1, Period: 12}, nil)
	out = sarima.Fit(context.Background(), mustSeries(t, seasonalValues(24, 100, 10)))
	if !errors.Is(out.Err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData for 24 months, got %v", out.Err)
	}
}

func TestARIMAAdapter_DegenerateDifferences(t *testing.T) {
	values := make([]float64, 30)
	for i := range values {
		values[i] = 10 + 2*float64(i)
	}
	a := NewARIMAAdapter("ARIMA(1,1,1)", FamilyARIMA, Order{P: 1, D: 1, Q: 1}, SeasonalOrder{}, nil)
	out := a.Fit(context.Background(), mustSeries(t, values))
	if !errors.Is(out.Err, ErrDegenerateSeries) {
		t.Errorf("Expected ErrDegenerateSeries for a straight line, got %v", out.Err)
	}
}

func TestSARIMAXAdapter(t *testing.T) {
	values := seasonalValues(48, 1000, 100)
	for i := range values {
		values[i] += 4 * float64(i)
	}
	s := mustSeries(t, values)
	a := NewSARIMAXAdapter("SARIMAX_EXOG", Order{P: 1, D: 1, Q: 1}, SeasonalOrder{P: 1, D: 1, Q: 1, Period: 12})
	if a.Family() != FamilyExogenous || !a.Applicable(diagnosticsReport(false, false)) {
		t.Error("Expected exogenous family applicable to every series")
	}
	m := mustFit(t, a, s)

	params := m.Descriptor().Parameters
	if slope := params["trend"]; math.Abs(slope-4) > 1.5 {
		t.Errorf("Expected trend near 4, got %v", slope)
	}

	r, err := m.Forecast(6, 0.95)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	checkResult(t, s, r, 6)
	for h := 0; h < 6; h++ {
		expected := values[len(values)-12+h] + 48
		if math.Abs(r.Values[h]-expected) > 60 {
			t.Errorf("Expected step %d near %v, got %v", h, expected, r.Values[h])
		}
	}

	fitted, ok := m.InSample()
	if !ok || len(fitted) != 48 || math.IsNaN(fitted[47]) {
		t.Errorf("Expected in-sample fit ending at the last month")
	}
}

func TestSARIMAXAdapter_InsufficientData(t *testing.T) {
	a := NewSARIMAXAdapter("SARIMAX_EXOG", Order{P: 1, D: 1, Q: 1}, SeasonalOrder{P: 1, D: 1, Q: 1, Period: 12})
	out := a.Fit(context.Background(), mustSeries(t, seasonalValues(24, 100, 10)))
	if !errors.Is(out.Err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData, got %v", out.Err)
	}
}
