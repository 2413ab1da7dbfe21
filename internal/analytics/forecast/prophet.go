package forecast

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/ledgercast/ledgercast/internal/analytics"
	"github.com/ledgercast/ledgercast/internal/analytics/diagnostics"
	"github.com/ledgercast/ledgercast/internal/analytics/linreg"
)

// ProphetAdapter implements a Prophet-style curve fit:
// - Piecewise linear trend with changepoints picked from residual mean shifts
// - Yearly seasonality as a Fourier series
// All terms are estimated jointly by least squares and scored by in-sample MSE.
type ProphetAdapter struct {
	ChangePointRange float64 // Proportion of history for potential changepoints (0-1)
	NumChangePoints  int     // Maximum number of changepoints
	FourierOrder     int     // Fourier terms for the yearly cycle
	Period           int
}

// NewProphetAdapter creates a Prophet-style adapter with default parameters
func NewProphetAdapter(period int) *ProphetAdapter {
	if period <= 1 {
		period = 12
	}
	return &ProphetAdapter{
		ChangePointRange: 0.8,
		NumChangePoints:  3,
		FourierOrder:     3,
		Period:           period,
	}
}

// Name returns the algorithm name
func (a *ProphetAdapter) Name() string { return "Prophet" }

func (a *ProphetAdapter) Family() Family { return FamilyCurve }

func (a *ProphetAdapter) Applicable(diagnostics.Report) bool { return true }

func (a *ProphetAdapter) Fit(ctx context.Context, s analytics.MonthlySeries) Outcome {
	return guardedFit(ctx, a.Name(), func() (FittedModel, error) {
		y := s.Values()
		n := len(y)
		if n < 4 {
			return nil, fmt.Errorf("Prophet: %w: need at least 4 months, have %d", ErrInsufficientData, n)
		}

		model := &prophetModel{
			tScale: float64(n - 1),
			period: float64(a.Period),
			last:   s.Last().Month,
		}
		// Seasonality needs a full cycle of history
		if n >= a.Period {
			model.fourierOrder = a.FourierOrder
		}
		model.changePoints = a.detectChangePoints(y, model.normalize)

		rows := make([][]float64, n)
		for t := range y {
			rows[t] = model.features(t)
		}
		if len(rows[0])+2 > n {
			return nil, fmt.Errorf("Prophet: %w: %d terms for %d months", ErrInsufficientData, len(rows[0]), n)
		}

		fit, err := linreg.OLS(rows, y)
		if err != nil {
			return nil, fmt.Errorf("Prophet: %w: %v", ErrNumerical, err)
		}
		model.fit = fit
		model.mse = CalculateMSE(y, fit.Fitted)
		model.sigma = math.Sqrt(fit.Sigma2())
		return model, nil
	})
}

// detectChangePoints returns the month indices where the residual mean of a
// straight-line fit shifts the most.
func (a *ProphetAdapter) detectChangePoints(y []float64, normalize func(int) float64) []float64 {
	n := len(y)
	rangeEnd := int(float64(n) * a.ChangePointRange)
	windowSize := max(3, n/20)
	if rangeEnd-windowSize <= windowSize {
		return nil
	}

	rows := make([][]float64, n)
	for t := range y {
		rows[t] = []float64{1, normalize(t)}
	}
	line, err := linreg.OLS(rows, y)
	if err != nil {
		return nil
	}

	type changePoint struct {
		idx   int
		score float64
	}
	candidates := make([]changePoint, 0, rangeEnd)
	for i := windowSize; i < rangeEnd-windowSize; i++ {
		before := mean(line.Residuals[i-windowSize : i])
		after := mean(line.Residuals[i : i+windowSize])
		candidates = append(candidates, changePoint{idx: i, score: math.Abs(after - before)})
	}

	// Sort by score and take top N
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	// Allow one changepoint per year of history
	numCP := min(a.NumChangePoints, len(candidates), n/12)

	result := make([]int, numCP)
	for i := 0; i < numCP; i++ {
		result[i] = candidates[i].idx
	}
	sort.Ints(result)

	points := make([]float64, len(result))
	for i, idx := range result {
		points[i] = normalize(idx)
	}
	return points
}

// prophetModel holds the fitted model parameters
type prophetModel struct {
	changePoints []float64 // Changepoint times (normalized)
	fourierOrder int
	period       float64
	tScale       float64

	fit   *linreg.Fit
	mse   float64
	sigma float64
	last  time.Time
}

func (m *prophetModel) normalize(t int) float64 {
	if m.tScale == 0 {
		return 0
	}
	return float64(t) / m.tScale
}

// features builds the regression row for month index t
func (m *prophetModel) features(t int) []float64 {
	tn := m.normalize(t)
	row := []float64{1, tn}
	for _, cp := range m.changePoints {
		row = append(row, math.Max(0, tn-cp))
	}
	for k := 1; k <= m.fourierOrder; k++ {
		angle := 2 * math.Pi * float64(k) * float64(t) / m.period
		row = append(row, math.Sin(angle), math.Cos(angle))
	}
	return row
}

func (m *prophetModel) Score() float64 { return m.mse }

func (m *prophetModel) Metric() Metric { return MetricMSE }

func (m *prophetModel) Descriptor() Descriptor {
	params := map[string]float64{
		"changepoints":  float64(len(m.changePoints)),
		"fourier_order": float64(m.fourierOrder),
		"growth":        m.fit.Coef[1] / m.tScale,
	}
	return Descriptor{Order: "piecewise linear trend", SeasonalOrder: fmt.Sprintf("fourier order %d", m.fourierOrder), Parameters: params}
}

// Forecast evaluates the curve on future months; uncertainty grows with the
// square root of the horizon.
func (m *prophetModel) Forecast(horizon int, confidence float64) (Result, error) {
	if err := checkHorizon(horizon); err != nil {
		return Result{}, err
	}

	n := len(m.fit.Fitted)
	values := make([]float64, horizon)
	stdErr := make([]float64, horizon)
	for h := 1; h <= horizon; h++ {
		values[h-1] = m.fit.Predict(m.features(n - 1 + h))
		stdErr[h-1] = m.sigma * math.Sqrt(float64(h))
	}
	return buildResult(m.last, values, stdErr, confidence), nil
}

func (m *prophetModel) InSample() ([]float64, bool) {
	return append([]float64(nil), m.fit.Fitted...), true
}
