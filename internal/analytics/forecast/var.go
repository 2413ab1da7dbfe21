package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ledgercast/ledgercast/internal/analytics"
	"github.com/ledgercast/ledgercast/internal/analytics/diagnostics"
	"github.com/ledgercast/ledgercast/internal/analytics/linreg"
	"gonum.org/v1/gonum/mat"
)

const (
	rollingWindow = 3
	varVariables  = 2
)

// VARAdapter fits a bivariate vector model on the series and its rolling
// mean. With MA == 0 it is VAR(1); with MA == 1 it is VARMA(1,1) estimated by
// the Hannan-Rissanen two-stage regression.
type VARAdapter struct {
	name    string
	MA      int
	MinRows int
}

// NewVARAdapter creates the VAR(1) adapter
func NewVARAdapter() *VARAdapter {
	return &VARAdapter{name: "VAR(1)", MinRows: 10}
}

// NewVARMAAdapter creates the VARMA(1,1) adapter
func NewVARMAAdapter() *VARAdapter {
	return &VARAdapter{name: "VARMA(1,1)", MA: 1, MinRows: 12}
}

func (a *VARAdapter) Name() string { return a.name }

func (a *VARAdapter) Family() Family { return FamilyMultivariate }

func (a *VARAdapter) Applicable(diagnostics.Report) bool { return true }

func (a *VARAdapter) Fit(ctx context.Context, s analytics.MonthlySeries) Outcome {
	return guardedFit(ctx, a.name, func() (FittedModel, error) {
		y := s.Values()
		if len(y) < a.MinRows {
			return nil, fmt.Errorf("%s: %w: need at least %d months, have %d", a.name, ErrInsufficientData, a.MinRows, len(y))
		}
		data := [][]float64{y, RollingMean(y, rollingWindow)}

		var (
			model *varModel
			err   error
		)
		if a.MA == 0 {
			model, err = fitVAR(data)
		} else {
			model, err = fitVARMA(data)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.name, err)
		}
		model.name = a.name
		model.last = s.Last().Month
		return model, nil
	})
}

// RollingMean is the trailing mean over window months, using as many months
// as are available at the start of the series.
func RollingMean(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		out[i] = sum / float64(min(i+1, window))
	}
	return out
}

// varModel is x_t = c + A x_{t-1} + M e_{t-1} + e_t with M zero for VAR(1)
type varModel struct {
	name  string
	data  [][]float64
	c     *mat.VecDense
	a     *mat.Dense
	m     *mat.Dense
	sigma *mat.Dense
	resid [][]float64 // per variable, zero where not estimated
	first int         // first month with a residual
	aic   float64
	last  time.Time
}

func fitVAR(data [][]float64) (*varModel, error) {
	n := len(data[0])
	rows := make([][]float64, 0, n-1)
	for t := 1; t < n; t++ {
		rows = append(rows, []float64{1, data[0][t-1], data[1][t-1]})
	}
	return estimateVAR(data, rows, 1, 0)
}

// fitVARMA regresses on lagged values and on the lagged residuals of a
// preliminary VAR(1).
func fitVARMA(data [][]float64) (*varModel, error) {
	stage1, err := fitVAR(data)
	if err != nil {
		return nil, err
	}

	n := len(data[0])
	rows := make([][]float64, 0, n-2)
	for t := 2; t < n; t++ {
		rows = append(rows, []float64{1, data[0][t-1], data[1][t-1], stage1.resid[0][t-1], stage1.resid[1][t-1]})
	}
	return estimateVAR(data, rows, 2, 1)
}

func estimateVAR(data [][]float64, rows [][]float64, first, ma int) (*varModel, error) {
	n := len(data[0])
	T := n - first

	model := &varModel{
		data:  data,
		c:     mat.NewVecDense(varVariables, nil),
		a:     mat.NewDense(varVariables, varVariables, nil),
		m:     mat.NewDense(varVariables, varVariables, nil),
		resid: [][]float64{make([]float64, n), make([]float64, n)},
		first: first,
	}

	for k := 0; k < varVariables; k++ {
		fit, err := linreg.OLS(rows, data[k][first:])
		if err != nil {
			return nil, fmt.Errorf("%w: equation %d: %v", ErrNumerical, k, err)
		}
		model.c.SetVec(k, fit.Coef[0])
		model.a.Set(k, 0, fit.Coef[1])
		model.a.Set(k, 1, fit.Coef[2])
		if ma > 0 {
			model.m.Set(k, 0, fit.Coef[3])
			model.m.Set(k, 1, fit.Coef[4])
		}
		copy(model.resid[k][first:], fit.Residuals)
	}

	sigma := mat.NewDense(varVariables, varVariables, nil)
	for i := 0; i < varVariables; i++ {
		for j := 0; j < varVariables; j++ {
			v := 0.0
			for t := first; t < n; t++ {
				v += model.resid[i][t] * model.resid[j][t]
			}
			sigma.Set(i, j, v/float64(T))
		}
	}
	model.sigma = sigma

	det := mat.Det(sigma)
	if det <= 0 || math.IsNaN(det) {
		return nil, fmt.Errorf("%w: residual covariance determinant is %v", ErrNumerical, det)
	}
	k := float64(varVariables)
	params := k*k*float64(1+ma) + k
	model.aic = math.Log(det) + 2*params/float64(T)
	return model, nil
}

func (m *varModel) Score() float64 { return m.aic }

func (m *varModel) Metric() Metric { return MetricAIC }

func (m *varModel) Descriptor() Descriptor {
	order := "(1)"
	if mat.Norm(m.m, 1) != 0 {
		order = "(1,1)"
	}
	return Descriptor{
		Order: order,
		Parameters: map[string]float64{
			"const.y":  m.c.AtVec(0),
			"L1.y.y":   m.a.At(0, 0),
			"L1.y.ma3": m.a.At(0, 1),
		},
	}
}

// Forecast iterates the system; interval variance is the first diagonal
// element of the accumulated psi-weighted covariance.
func (m *varModel) Forecast(horizon int, confidence float64) (Result, error) {
	if err := checkHorizon(horizon); err != nil {
		return Result{}, err
	}

	n := len(m.data[0])
	x := mat.NewVecDense(varVariables, []float64{m.data[0][n-1], m.data[1][n-1]})
	e := mat.NewVecDense(varVariables, []float64{m.resid[0][n-1], m.resid[1][n-1]})

	values := make([]float64, horizon)
	stdErr := make([]float64, horizon)

	psi := mat.NewDense(varVariables, varVariables, []float64{1, 0, 0, 1})
	mse := mat.NewDense(varVariables, varVariables, nil)
	var term, tmp mat.Dense

	for h := 0; h < horizon; h++ {
		var next mat.VecDense
		next.MulVec(m.a, x)
		next.AddVec(&next, m.c)
		if h == 0 {
			var shock mat.VecDense
			shock.MulVec(m.m, e)
			next.AddVec(&next, &shock)
		}
		values[h] = next.AtVec(0)
		x = &next

		tmp.Mul(psi, m.sigma)
		term.Mul(&tmp, psi.T())
		mse.Add(mse, &term)
		stdErr[h] = math.Sqrt(mse.At(0, 0))

		var nextPsi mat.Dense
		if h == 0 {
			nextPsi.Add(m.a, m.m)
		} else {
			nextPsi.Mul(m.a, psi)
		}
		psi = &nextPsi
	}

	return buildResult(m.last, values, stdErr, confidence), nil
}

func (m *varModel) InSample() ([]float64, bool) {
	fitted := nanSlice(len(m.data[0]))
	for t := m.first; t < len(fitted); t++ {
		fitted[t] = m.data[0][t] - m.resid[0][t]
	}
	return fitted, true
}
