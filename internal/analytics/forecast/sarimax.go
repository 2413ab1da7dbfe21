package forecast

import (
	"context"
	"fmt"
	"time"

	"github.com/ledgercast/ledgercast/internal/analytics"
	"github.com/ledgercast/ledgercast/internal/analytics/diagnostics"
	"github.com/ledgercast/ledgercast/internal/analytics/linreg"
)

// SARIMAXAdapter regresses the series on a linear trend covariate and models
// the regression errors as a seasonal ARIMA process.
type SARIMAXAdapter struct {
	name           string
	order          Order
	seasonal       SeasonalOrder
	maxEvaluations int
}

// NewSARIMAXAdapter creates the trend-covariate adapter
func NewSARIMAXAdapter(name string, order Order, seasonal SeasonalOrder) *SARIMAXAdapter {
	return &SARIMAXAdapter{
		name:           name,
		order:          order,
		seasonal:       seasonal,
		maxEvaluations: defaultMaxEvaluations,
	}
}

func (a *SARIMAXAdapter) Name() string { return a.name }

func (a *SARIMAXAdapter) Family() Family { return FamilyExogenous }

func (a *SARIMAXAdapter) Applicable(diagnostics.Report) bool { return true }

func (a *SARIMAXAdapter) Fit(ctx context.Context, s analytics.MonthlySeries) Outcome {
	return guardedFit(ctx, a.name, func() (FittedModel, error) {
		y := s.Values()
		x := make([][]float64, len(y))
		for t := range y {
			x[t] = []float64{1, float64(t)}
		}
		trend, err := linreg.OLS(x, y)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %v", a.name, ErrNumerical, err)
		}

		noise, err := fitARIMA(trend.Residuals, a.order, a.seasonal, a.maxEvaluations)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.name, err)
		}

		params := make(map[string]float64, len(noise.params)+2)
		for k, v := range noise.params {
			params[k] = v
		}
		params["intercept"] = trend.Coef[0]
		params["trend"] = trend.Coef[1]

		return &sarimaxModel{
			trend:  trend,
			noise:  noise,
			aic:    noise.aic + 2*float64(len(trend.Coef)),
			n:      len(y),
			params: params,
			last:   s.Last().Month,
		}, nil
	})
}

type sarimaxModel struct {
	trend  *linreg.Fit
	noise  *arimaFit
	aic    float64
	n      int
	params map[string]float64
	last   time.Time
}

func (m *sarimaxModel) Score() float64 { return m.aic }

func (m *sarimaxModel) Metric() Metric { return MetricAIC }

func (m *sarimaxModel) Descriptor() Descriptor {
	return Descriptor{
		Order:         m.noise.order.String(),
		SeasonalOrder: m.noise.seasonal.String(),
		Parameters:    m.params,
	}
}

func (m *sarimaxModel) Forecast(horizon int, confidence float64) (Result, error) {
	if err := checkHorizon(horizon); err != nil {
		return Result{}, err
	}
	values, stdErr := m.noise.forecast(horizon)
	for h := range values {
		values[h] += m.trend.Predict([]float64{1, float64(m.n + h)})
	}
	return buildResult(m.last, values, stdErr, confidence), nil
}

func (m *sarimaxModel) InSample() ([]float64, bool) {
	fitted := m.noise.fitted()
	for t := range fitted {
		fitted[t] += m.trend.Fitted[t]
	}
	return fitted, true
}
