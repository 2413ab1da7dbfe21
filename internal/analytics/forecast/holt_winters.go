package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ledgercast/ledgercast/internal/analytics"
	"github.com/ledgercast/ledgercast/internal/analytics/diagnostics"
)

// HoltWintersAdapter implements additive Holt-Winters (triple exponential
// smoothing). With fewer than two seasons it falls back to Holt's linear
// trend method.
type HoltWintersAdapter struct {
	period         int
	maxEvaluations int
}

// NewHoltWintersAdapter creates a Holt-Winters adapter for the given season length
func NewHoltWintersAdapter(period int) *HoltWintersAdapter {
	if period <= 1 {
		period = 12
	}
	return &HoltWintersAdapter{period: period, maxEvaluations: defaultMaxEvaluations}
}

// Name returns the algorithm name
func (a *HoltWintersAdapter) Name() string { return "HoltWinters" }

func (a *HoltWintersAdapter) Family() Family { return FamilySmoothing }

func (a *HoltWintersAdapter) Applicable(diagnostics.Report) bool { return true }

// Fit optimizes the smoothing constants on the in-sample squared error
func (a *HoltWintersAdapter) Fit(ctx context.Context, s analytics.MonthlySeries) Outcome {
	return guardedFit(ctx, a.Name(), func() (FittedModel, error) {
		y := s.Values()
		period := a.period
		// Need at least 2 complete seasons
		if len(y) < 2*period {
			period = 0
		}
		if len(y) < 4 {
			return nil, fmt.Errorf("HoltWinters: %w: need at least 4 months, have %d", ErrInsufficientData, len(y))
		}

		state := initialSmoothingState(y, period)
		sse := func(x []float64) float64 {
			run := state.run(y, unitInterval(x[0]), unitInterval(x[1]), unitInterval(x[2]))
			return run.sse
		}

		x0 := []float64{logit(0.3), logit(0.1), logit(0.1)}
		best, _, err := minimize(sse, x0, a.maxEvaluations)
		if err != nil {
			return nil, fmt.Errorf("HoltWinters: %w", err)
		}

		alpha, beta, gamma := unitInterval(best[0]), unitInterval(best[1]), unitInterval(best[2])
		run := state.run(y, alpha, beta, gamma)
		n := float64(len(y))
		if run.sse <= 0 {
			return nil, fmt.Errorf("HoltWinters: %w: zero in-sample error", ErrNumerical)
		}

		// smoothing constants plus initial level, trend and seasonal states
		k := 2 + 2 + period
		if period > 0 {
			k++
		}

		params := map[string]float64{
			"smoothing_level": alpha,
			"smoothing_trend": beta,
		}
		order := "additive trend"
		seasonalOrder := ""
		if period > 0 {
			params["smoothing_seasonal"] = gamma
			order = "additive trend, additive seasonal"
			seasonalOrder = fmt.Sprintf("period %d", period)
		}

		return &holtWintersModel{
			run:           run,
			period:        period,
			alpha:         alpha,
			beta:          beta,
			gamma:         gamma,
			sigma2:        run.sse / n,
			aic:           n*math.Log(run.sse/n) + 2*float64(k),
			order:         order,
			seasonalOrder: seasonalOrder,
			params:        params,
			last:          s.Last().Month,
		}, nil
	})
}

type smoothingState struct {
	level    float64
	trend    float64
	seasonal []float64
	period   int
}

type smoothingRun struct {
	level    float64
	trend    float64
	seasonal []float64 // one value per observed month
	fitted   []float64
	sse      float64
}

func initialSmoothingState(y []float64, period int) smoothingState {
	if period == 0 {
		return smoothingState{level: y[0], trend: y[1] - y[0]}
	}

	first := mean(y[:period])
	second := mean(y[period : 2*period])
	state := smoothingState{
		level:    first,
		trend:    (second - first) / float64(period),
		seasonal: make([]float64, period),
		period:   period,
	}
	for i := 0; i < period; i++ {
		state.seasonal[i] = y[i] - first
	}
	return state
}

func (s smoothingState) run(y []float64, alpha, beta, gamma float64) smoothingRun {
	level, trend := s.level, s.trend
	seasonal := make([]float64, len(y))
	fitted := make([]float64, len(y))
	sse := 0.0

	for t, v := range y {
		prevSeason := 0.0
		if s.period > 0 {
			if t < s.period {
				prevSeason = s.seasonal[t]
			} else {
				prevSeason = seasonal[t-s.period]
			}
		}

		fitted[t] = level + trend + prevSeason
		diff := v - fitted[t]
		sse += diff * diff

		prevLevel := level
		level = alpha*(v-prevSeason) + (1-alpha)*(level+trend)
		trend = beta*(level-prevLevel) + (1-beta)*trend
		if s.period > 0 {
			seasonal[t] = gamma*(v-level) + (1-gamma)*prevSeason
		}
	}

	return smoothingRun{level: level, trend: trend, seasonal: seasonal, fitted: fitted, sse: sse}
}

type holtWintersModel struct {
	run                smoothingRun
	period             int
	alpha, beta, gamma float64
	sigma2             float64
	aic                float64
	order              string
	seasonalOrder      string
	params             map[string]float64
	last               time.Time
}

func (m *holtWintersModel) Score() float64 { return m.aic }

func (m *holtWintersModel) Metric() Metric { return MetricAIC }

func (m *holtWintersModel) Descriptor() Descriptor {
	return Descriptor{Order: m.order, SeasonalOrder: m.seasonalOrder, Parameters: m.params}
}

// Forecast extends the last level and trend, repeating the last season.
// Interval variance follows the additive Holt-Winters class-1 formula.
func (m *holtWintersModel) Forecast(horizon int, confidence float64) (Result, error) {
	if err := checkHorizon(horizon); err != nil {
		return Result{}, err
	}

	n := len(m.run.seasonal)
	values := make([]float64, horizon)
	stdErr := make([]float64, horizon)
	acc := 1.0
	for h := 1; h <= horizon; h++ {
		v := m.run.level + float64(h)*m.run.trend
		if m.period > 0 {
			back := (h-1)%m.period + 1
			v += m.run.seasonal[n-m.period+back-1]
		}
		values[h-1] = v

		if h > 1 {
			j := float64(h - 1)
			c := m.alpha * (1 + j*m.beta)
			if m.period > 0 && (h-1)%m.period == 0 {
				c += m.gamma * (1 - m.alpha)
			}
			acc += c * c
		}
		stdErr[h-1] = math.Sqrt(m.sigma2 * acc)
	}

	return buildResult(m.last, values, stdErr, confidence), nil
}

func (m *holtWintersModel) InSample() ([]float64, bool) {
	return append([]float64(nil), m.run.fitted...), true
}
