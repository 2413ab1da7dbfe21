package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/ledgercast/ledgercast/internal/analytics"
	"github.com/ledgercast/ledgercast/internal/analytics/diagnostics"
	"gonum.org/v1/gonum/stat"
)

// Order is a non-seasonal (p,d,q) order
type Order struct {
	P int // AR order
	D int // Differencing order
	Q int // MA order
}

func (o Order) String() string {
	return fmt.Sprintf("(%d,%d,%d)", o.P, o.D, o.Q)
}

// SeasonalOrder is a seasonal (P,D,Q,s) order. A zero Period means no seasonal part.
type SeasonalOrder struct {
	P      int
	D      int
	Q      int
	Period int
}

func (s SeasonalOrder) String() string {
	if s.Period == 0 {
		return ""
	}
	return fmt.Sprintf("(%d,%d,%d,%d)", s.P, s.D, s.Q, s.Period)
}

func (s SeasonalOrder) lag(k int) int {
	return k * s.Period
}

// ARIMAAdapter fits a multiplicative seasonal ARIMA model by conditional sum
// of squares. It covers AR, MA, ARMA, ARIMA and SARIMA.
type ARIMAAdapter struct {
	name           string
	family         Family
	order          Order
	seasonal       SeasonalOrder
	when           Condition
	maxEvaluations int
}

// NewARIMAAdapter creates an adapter for a fixed order
func NewARIMAAdapter(name string, family Family, order Order, seasonal SeasonalOrder, when Condition) *ARIMAAdapter {
	if when == nil {
		when = Always
	}
	if seasonal.Period == 0 {
		seasonal = SeasonalOrder{}
	}
	return &ARIMAAdapter{
		name:           name,
		family:         family,
		order:          order,
		seasonal:       seasonal,
		when:           when,
		maxEvaluations: defaultMaxEvaluations,
	}
}

// Name returns the adapter name
func (a *ARIMAAdapter) Name() string { return a.name }

// Family returns the adapter family
func (a *ARIMAAdapter) Family() Family { return a.family }

// Applicable reports whether the order suits the diagnostics
func (a *ARIMAAdapter) Applicable(report diagnostics.Report) bool { return a.when(report) }

// Fit estimates the coefficients on the whole series
func (a *ARIMAAdapter) Fit(ctx context.Context, s analytics.MonthlySeries) Outcome {
	return guardedFit(ctx, a.name, func() (FittedModel, error) {
		fit, err := fitARIMA(s.Values(), a.order, a.seasonal, a.maxEvaluations)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.name, err)
		}
		return &arimaModel{fit: fit, last: s.Last().Month}, nil
	})
}

// arimaFit holds the estimated state of a seasonal ARIMA model. ar and ma are
// the expanded lag polynomials (index 0 is the constant 1).
type arimaFit struct {
	order    Order
	seasonal SeasonalOrder

	y       []float64
	z       []float64
	mu      float64
	hasMean bool

	ar    []float64
	ma    []float64
	diff  []float64
	resid []float64
	start int

	sigma2 float64
	nUsed  int
	k      int
	aic    float64
	params map[string]float64
}

func fitARIMA(y []float64, order Order, seasonal SeasonalOrder, maxEvaluations int) (*arimaFit, error) {
	diff := differencingPolynomial(order.D, seasonal.D, seasonal.Period)
	offset := len(diff) - 1
	if len(y) <= offset {
		return nil, fmt.Errorf("%w: %d months cannot be differenced %d times", ErrInsufficientData, len(y), offset)
	}
	z := applyPolynomial(diff, y)

	nCoef := order.P + order.Q + seasonal.P + seasonal.Q
	hasMean := order.D == 0 && seasonal.D == 0
	nParams := nCoef
	if hasMean {
		nParams++
	}
	start := order.P + seasonal.lag(seasonal.P)
	if len(z)-start < nParams+3 {
		return nil, fmt.Errorf("%w: %d usable months for %d parameters", ErrInsufficientData, len(z)-start, nParams)
	}

	center, scale := stat.PopMeanStdDev(z, nil)
	if scale == 0 || math.IsNaN(scale) {
		return nil, fmt.Errorf("%w: differenced series has no variance", ErrDegenerateSeries)
	}
	if !hasMean {
		center = 0
	}
	zs := make([]float64, len(z))
	for i, v := range z {
		zs[i] = (v - center) / scale
	}

	unpack := func(x []float64) (ar, ma []float64, mu float64) {
		phi, x := boundedSlice(x, order.P)
		theta, x := boundedSlice(x, order.Q)
		sphi, x := boundedSlice(x, seasonal.P)
		stheta, x := boundedSlice(x, seasonal.Q)
		if hasMean {
			mu = x[0]
		}
		ar = polyMul(arPolynomial(phi, 1), arPolynomial(sphi, seasonal.Period))
		ma = polyMul(maPolynomial(theta, 1), maPolynomial(stheta, seasonal.Period))
		return ar, ma, mu
	}

	css := func(x []float64) float64 {
		ar, ma, mu := unpack(x)
		resid := cssResiduals(zs, ar, ma, mu, start)
		sse := 0.0
		for _, e := range resid[start:] {
			sse += e * e
		}
		return sse
	}

	best, sse, err := minimize(css, make([]float64, nParams), maxEvaluations)
	if err != nil {
		return nil, err
	}

	ar, ma, muScaled := unpack(best)
	residScaled := cssResiduals(zs, ar, ma, muScaled, start)
	resid := make([]float64, len(residScaled))
	for i, e := range residScaled {
		resid[i] = e * scale
	}

	nUsed := len(z) - start
	sigma2 := sse * scale * scale / float64(nUsed)
	if sigma2 <= 0 || math.IsNaN(sigma2) {
		return nil, fmt.Errorf("%w: residual variance is %v", ErrNumerical, sigma2)
	}
	k := nParams + 1
	logLik := -0.5 * float64(nUsed) * (math.Log(2*math.Pi*sigma2) + 1)

	fit := &arimaFit{
		order:    order,
		seasonal: seasonal,
		y:        append([]float64(nil), y...),
		z:        z,
		mu:       center + muScaled*scale,
		hasMean:  hasMean,
		ar:       ar,
		ma:       ma,
		diff:     diff,
		resid:    resid,
		start:    start,
		sigma2:   sigma2,
		nUsed:    nUsed,
		k:        k,
		aic:      -2*logLik + 2*float64(k),
	}
	fit.params = fit.describe(best)
	return fit, nil
}

func (f *arimaFit) describe(x []float64) map[string]float64 {
	params := make(map[string]float64)
	i := 0
	for lag := 1; lag <= f.order.P; lag++ {
		params[fmt.Sprintf("ar.L%d", lag)] = bounded(x[i])
		i++
	}
	for lag := 1; lag <= f.order.Q; lag++ {
		params[fmt.Sprintf("ma.L%d", lag)] = bounded(x[i])
		i++
	}
	for lag := 1; lag <= f.seasonal.P; lag++ {
		params[fmt.Sprintf("ar.S.L%d", f.seasonal.lag(lag))] = bounded(x[i])
		i++
	}
	for lag := 1; lag <= f.seasonal.Q; lag++ {
		params[fmt.Sprintf("ma.S.L%d", f.seasonal.lag(lag))] = bounded(x[i])
		i++
	}
	if f.hasMean {
		params["const"] = f.mu
	}
	params["sigma2"] = f.sigma2
	return params
}

// fitted returns the one-step in-sample predictions on the original scale
func (f *arimaFit) fitted() []float64 {
	offset := len(f.diff) - 1
	out := nanSlice(len(f.y))
	for t := f.start; t < len(f.z); t++ {
		out[offset+t] = f.y[offset+t] - f.resid[t]
	}
	return out
}

// forecast returns point forecasts and standard errors for horizon months
func (f *arimaFit) forecast(horizon int) ([]float64, []float64) {
	n := len(f.z)
	z := make([]float64, n+horizon)
	copy(z, f.z)
	e := make([]float64, n+horizon)
	copy(e, f.resid)

	for t := n; t < n+horizon; t++ {
		pred := f.mu
		for j := 1; j < len(f.ar); j++ {
			if t-j >= 0 {
				pred -= f.ar[j] * (z[t-j] - f.mu)
			}
		}
		for j := 1; j < len(f.ma); j++ {
			if t-j >= 0 {
				pred += f.ma[j] * e[t-j]
			}
		}
		z[t] = pred
	}

	y := make([]float64, len(f.y)+horizon)
	copy(y, f.y)
	offset := len(f.diff) - 1
	for t := len(f.y); t < len(y); t++ {
		v := z[t-offset]
		for j := 1; j < len(f.diff); j++ {
			v -= f.diff[j] * y[t-j]
		}
		y[t] = v
	}

	psi := psiWeights(polyMul(f.ar, f.diff), f.ma, horizon)
	stdErr := make([]float64, horizon)
	acc := 0.0
	for h := 0; h < horizon; h++ {
		acc += psi[h] * psi[h]
		stdErr[h] = math.Sqrt(f.sigma2 * acc)
	}
	return y[len(f.y):], stdErr
}

type arimaModel struct {
	fit  *arimaFit
	last time.Time
}

func (m *arimaModel) Score() float64 { return m.fit.aic }

func (m *arimaModel) Metric() Metric { return MetricAIC }

func (m *arimaModel) Descriptor() Descriptor {
	return Descriptor{
		Order:         m.fit.order.String(),
		SeasonalOrder: m.fit.seasonal.String(),
		Parameters:    m.fit.params,
	}
}

func (m *arimaModel) Forecast(horizon int, confidence float64) (Result, error) {
	if err := checkHorizon(horizon); err != nil {
		return Result{}, err
	}
	values, stdErr := m.fit.forecast(horizon)
	return buildResult(m.last, values, stdErr, confidence), nil
}

func (m *arimaModel) InSample() ([]float64, bool) {
	return m.fit.fitted(), true
}

// cssResiduals computes conditional residuals; residuals before start are zero
func cssResiduals(z, ar, ma []float64, mu float64, start int) []float64 {
	e := make([]float64, len(z))
	for t := start; t < len(z); t++ {
		pred := mu
		for j := 1; j < len(ar); j++ {
			if t-j >= 0 {
				pred -= ar[j] * (z[t-j] - mu)
			}
		}
		for j := 1; j < len(ma); j++ {
			if t-j >= 0 {
				pred += ma[j] * e[t-j]
			}
		}
		e[t] = z[t] - pred
	}
	return e
}

// psiWeights returns the first n coefficients of ma(B)/ar(B)
func psiWeights(ar, ma []float64, n int) []float64 {
	psi := make([]float64, n)
	for j := 0; j < n; j++ {
		v := 0.0
		if j == 0 {
			v = 1
		} else if j < len(ma) {
			v = ma[j]
		}
		for i := 1; i <= j && i < len(ar); i++ {
			v -= ar[i] * psi[j-i]
		}
		psi[j] = v
	}
	return psi
}

// arPolynomial returns 1 - c1 B^step - c2 B^(2 step) ...
func arPolynomial(coefs []float64, step int) []float64 {
	poly := make([]float64, len(coefs)*step+1)
	poly[0] = 1
	for i, c := range coefs {
		poly[(i+1)*step] = -c
	}
	return poly
}

// maPolynomial returns 1 + c1 B^step + c2 B^(2 step) ...
func maPolynomial(coefs []float64, step int) []float64 {
	poly := make([]float64, len(coefs)*step+1)
	poly[0] = 1
	for i, c := range coefs {
		poly[(i+1)*step] = c
	}
	return poly
}

// differencingPolynomial returns (1-B)^d (1-B^s)^D
func differencingPolynomial(d, seasonalD, period int) []float64 {
	poly := []float64{1}
	for i := 0; i < d; i++ {
		poly = polyMul(poly, []float64{1, -1})
	}
	for i := 0; i < seasonalD; i++ {
		poly = polyMul(poly, arPolynomial([]float64{1}, period))
	}
	return poly
}

// applyPolynomial filters y by poly, dropping the first len(poly)-1 values
func applyPolynomial(poly, y []float64) []float64 {
	offset := len(poly) - 1
	out := make([]float64, len(y)-offset)
	for t := offset; t < len(y); t++ {
		v := 0.0
		for j, c := range poly {
			v += c * y[t-j]
		}
		out[t-offset] = v
	}
	return out
}

func polyMul(a, b []float64) []float64 {
	out := make([]float64, len(a)+len(b)-1)
	for i, x := range a {
		if x == 0 {
			continue
		}
		for j, y := range b {
			out[i+j] += x * y
		}
	}
	return out
}

func boundedSlice(x []float64, n int) ([]float64, []float64) {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = bounded(x[i])
	}
	return out, x[n:]
}
