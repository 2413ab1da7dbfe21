package forecast

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/ledgercast/ledgercast/internal/analytics"
	"github.com/ledgercast/ledgercast/internal/analytics/diagnostics"
)

// Common test data and helpers for all forecast tests

var testStart = time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)

// noise returns deterministic pseudo-random values in [-1, 1)
func noise(seed uint64, n int) []float64 {
	out := make([]float64, n)
	state := seed
	for i := range out {
		state = state*6364136223846793005 + 1442695040888963407
		out[i] = float64(state>>11)/float64(1<<53)*2 - 1
	}
	return out
}

func mustSeries(t *testing.T, values []float64) analytics.MonthlySeries {
	t.Helper()
	s, err := analytics.NewMonthlySeriesFromValues(testStart, values)
	if err != nil {
		t.Fatalf("Failed to build series: %v", err)
	}
	return s
}

// seasonalValues creates a yearly sine pattern around level with small noise
func seasonalValues(n int, level, amplitude float64) []float64 {
	eps := noise(7, n)
	values := make([]float64, n)
	for i := range values {
		values[i] = level + amplitude*math.Sin(2*math.Pi*float64(i%12)/12) + 5*eps[i]
	}
	return values
}

// ar1Values simulates x_t = mu + phi (x_{t-1} - mu) + e_t
func ar1Values(n int, mu, phi float64) []float64 {
	eps := noise(11, n)
	values := make([]float64, n)
	prev := mu
	for i := range values {
		prev = mu + phi*(prev-mu) + 10*eps[i]
		values[i] = prev
	}
	return values
}

// randomWalk accumulates noise on top of a drift
func randomWalk(n int, start, drift float64) []float64 {
	eps := noise(13, n)
	values := make([]float64, n)
	level := start
	for i := range values {
		level += drift + 20*eps[i]
		values[i] = level
	}
	return values
}

func mustFit(t *testing.T, a Adapter, s analytics.MonthlySeries) FittedModel {
	t.Helper()
	out := a.Fit(context.Background(), s)
	if out.Err != nil {
		t.Fatalf("Expected %s to fit, got error: %v", a.Name(), out.Err)
	}
	if out.Model == nil {
		t.Fatalf("Expected %s to return a model", a.Name())
	}
	return out.Model
}

func checkResult(t *testing.T, s analytics.MonthlySeries, r Result, horizon int) {
	t.Helper()
	if r.Len() != horizon || len(r.Dates) != horizon || len(r.Lower) != horizon || len(r.Upper) != horizon {
		t.Fatalf("Expected %d forecast values, got values=%d dates=%d lower=%d upper=%d",
			horizon, r.Len(), len(r.Dates), len(r.Lower), len(r.Upper))
	}
	for h := 0; h < horizon; h++ {
		want := analytics.AddMonths(s.Last().Month, h+1)
		if !r.Dates[h].Equal(want) {
			t.Errorf("Expected date %v at step %d, got %v", want, h, r.Dates[h])
		}
		if math.IsNaN(r.Values[h]) || math.IsInf(r.Values[h], 0) {
			t.Errorf("Expected finite forecast at step %d, got %v", h, r.Values[h])
		}
		if r.Lower[h] > r.Values[h] || r.Upper[h] < r.Values[h] {
			t.Errorf("Expected lower <= value <= upper at step %d, got %v <= %v <= %v", h, r.Lower[h], r.Values[h], r.Upper[h])
		}
	}
}

func diagnosticsReport(stationary, seasonal bool) diagnostics.Report {
	return diagnostics.Report{IsStationary: stationary, HasSeasonality: seasonal, Period: 12}
}
