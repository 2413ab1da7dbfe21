package diagnostics

import (
	"math"

	"github.com/ledgercast/ledgercast/internal/analytics/linreg"
	"gonum.org/v1/gonum/stat/distuv"
)

// minADFObservations is the shortest series the unit-root test accepts
const minADFObservations = 10

// ADFResult holds an Augmented Dickey-Fuller test with a constant term.
type ADFResult struct {
	Statistic  float64 `json:"statistic"`
	PValue     float64 `json:"p_value"`
	Lags       int     `json:"lags"`
	NObs       int     `json:"n_obs"`
	Determined bool    `json:"determined"`
}

// ADF tests values for a unit root. The null hypothesis is non-stationarity;
// a small p-value rejects it. The lag order follows floor((n-1)^(1/3)) and is
// reduced when the regression would run out of degrees of freedom.
func ADF(values []float64) ADFResult {
	n := len(values)
	if n < minADFObservations {
		return ADFResult{}
	}

	lags := int(math.Floor(math.Pow(float64(n-1), 1.0/3.0)))
	for lags > 0 && n-lags-1 < 2*(lags+2) {
		lags--
	}

	diff := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diff[i-1] = values[i] - values[i-1]
	}

	// delta_y_t = alpha + beta*y_{t-1} + sum(gamma_i * delta_y_{t-i})
	nObs := len(diff) - lags
	x := make([][]float64, nObs)
	y := make([]float64, nObs)
	for i := 0; i < nObs; i++ {
		t := i + lags
		y[i] = diff[t]
		row := make([]float64, 2+lags)
		row[0] = 1
		row[1] = values[t]
		for j := 1; j <= lags; j++ {
			row[1+j] = diff[t-j]
		}
		x[i] = row
	}

	fit, err := linreg.OLS(x, y)
	if err != nil || fit.StdErr[1] == 0 || math.IsNaN(fit.StdErr[1]) {
		return ADFResult{Lags: lags, NObs: nObs}
	}

	stat := fit.Coef[1] / fit.StdErr[1]
	return ADFResult{
		Statistic:  stat,
		PValue:     mackinnonPValue(stat),
		Lags:       lags,
		NObs:       nObs,
		Determined: true,
	}
}

// MacKinnon (1994) response surface for a single series with a constant.
var (
	tauMaxC    = 2.74
	tauMinC    = -18.83
	tauStarC   = -1.61
	tauSmallPC = []float64{2.1659, 1.4412, 0.038269}
	tauLargePC = []float64{1.7339, 0.93202, -0.12745, -0.010368}
)

// mackinnonPValue returns the approximate asymptotic p-value of an ADF statistic.
func mackinnonPValue(stat float64) float64 {
	switch {
	case stat > tauMaxC:
		return 1
	case stat < tauMinC:
		return 0
	}

	coef := tauLargePC
	if stat <= tauStarC {
		coef = tauSmallPC
	}

	poly := 0.0
	for i := len(coef) - 1; i >= 0; i-- {
		poly = poly*stat + coef[i]
	}
	return distuv.UnitNormal.CDF(poly)
}
