package forecast

import (
	"context"
	"errors"
	"math"
	"testing"
)

func TestHoltWintersAdapter_Name(t *testing.T) {
	a := NewHoltWintersAdapter(12)
	if a.Name() != "HoltWinters" {
		t.Errorf("Expected name 'HoltWinters', got %s", a.Name())
	}
	if a.Family() != FamilySmoothing {
		t.Errorf("Expected smoothing family, got %s", a.Family())
	}
}

func TestHoltWintersAdapter_Seasonal(t *testing.T) {
	values := seasonalValues(48, 1000, 100)
	s := mustSeries(t, values)
	m := mustFit(t, NewHoltWintersAdapter(12), s)

	params := m.Descriptor().Parameters
	for _, key := range []string{"smoothing_level", "smoothing_trend", "smoothing_seasonal"} {
		v, ok := params[key]
		if !ok {
			t.Errorf("Expected parameter %s", key)
			continue
		}
		if v <= 0 || v >= 1 {
			t.Errorf("Expected %s in (0, 1), got %v", key, v)
		}
	}
	if m.Metric() != MetricAIC {
		t.Errorf("Expected AIC metric, got %s", m.Metric())
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
	for h := 1; h < 12; h++ {
		if r.Upper[h]-r.Lower[h] < r.Upper[h-1]-r.Lower[h-1]-1e-9 {
			t.Errorf("Expected interval to widen at step %d", h)
		}
	}

	fitted, ok := m.InSample()
	if !ok || len(fitted) != 48 {
		t.Fatalf("Expected 48 in-sample values")
	}
	for i, v := range fitted {
		if math.IsNaN(v) {
			t.Errorf("Expected in-sample value at %d", i)
		}
	}
}

func TestHoltWintersAdapter_ShortSeriesUsesHoltLinear(t *testing.T) {
	values := make([]float64, 12)
	eps := noise(3, 12)
	for i := range values {
		values[i] = 100 + 10*float64(i) + eps[i]
	}
	s := mustSeries(t, values)
	m := mustFit(t, NewHoltWintersAdapter(12), s)

	d := m.Descriptor()
	if d.SeasonalOrder != "" {
		t.Errorf("Expected no seasonal component, got %q", d.SeasonalOrder)
	}
	if _, ok := d.Parameters["smoothing_seasonal"]; ok {
		t.Error("Expected no seasonal smoothing constant")
	}

	r, err := m.Forecast(6, 0.95)
	if err != nil {
		t.Fatalf("Forecast failed: %v", err)
	}
	checkResult(t, s, r, 6)
	if r.Values[5] <= r.Values[0] {
		t.Errorf("Expected upward trend to continue, got %v", r.Values)
	}
}

func TestHoltWintersAdapter_InsufficientData(t *testing.T) {
	out := NewHoltWintersAdapter(12).Fit(context.Background(), mustSeries(t, []float64{1, 2, 4}))
	if !errors.Is(out.Err, ErrInsufficientData) {
		t.Errorf("Expected ErrInsufficientData, got %v", out.Err)
	}
}
