// Package linreg wraps the gonum least-squares routines used by the
// diagnostics and the regression-based adapters.
package linreg

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrUnderdetermined is returned when there are no more rows than regressors
	ErrUnderdetermined = errors.New("not enough observations for regression")
	// ErrSingular is returned when the design matrix is rank deficient
	ErrSingular = errors.New("design matrix is singular")
)

// Fit is the result of an ordinary least squares regression.
type Fit struct {
	Coef      []float64
	StdErr    []float64
	Fitted    []float64
	Residuals []float64
	SSE       float64
	DF        int // residual degrees of freedom
}

// Sigma2 returns the unbiased residual variance
func (f *Fit) Sigma2() float64 {
	if f.DF <= 0 {
		return 0
	}
	return f.SSE / float64(f.DF)
}

// OLS regresses y on the rows of x. Every row must have the same width.
func OLS(x [][]float64, y []float64) (*Fit, error) {
	n := len(y)
	if n == 0 || len(x) != n {
		return nil, fmt.Errorf("%w: %d rows for %d targets", ErrUnderdetermined, len(x), n)
	}
	k := len(x[0])
	if n <= k {
		return nil, fmt.Errorf("%w: %d rows, %d regressors", ErrUnderdetermined, n, k)
	}

	flat := make([]float64, 0, n*k)
	for i, row := range x {
		if len(row) != k {
			return nil, fmt.Errorf("row %d has %d columns, want %d", i, len(row), k)
		}
		flat = append(flat, row...)
	}

	design := mat.NewDense(n, k, flat)
	target := mat.NewVecDense(n, y)

	var beta mat.VecDense
	if err := acceptCondition(beta.SolveVec(design, target)); err != nil {
		return nil, err
	}

	var fitted mat.VecDense
	fitted.MulVec(design, &beta)

	fit := &Fit{
		Coef:      make([]float64, k),
		StdErr:    make([]float64, k),
		Fitted:    make([]float64, n),
		Residuals: make([]float64, n),
		DF:        n - k,
	}
	for j := 0; j < k; j++ {
		fit.Coef[j] = beta.AtVec(j)
	}
	for i := 0; i < n; i++ {
		fit.Fitted[i] = fitted.AtVec(i)
		fit.Residuals[i] = y[i] - fit.Fitted[i]
		fit.SSE += fit.Residuals[i] * fit.Residuals[i]
	}
	if math.IsNaN(fit.SSE) || math.IsInf(fit.SSE, 0) {
		return nil, ErrSingular
	}

	var gram, inv mat.Dense
	gram.Mul(design.T(), design)
	if err := acceptCondition(inv.Inverse(&gram)); err != nil {
		return nil, err
	}
	sigma2 := fit.Sigma2()
	for j := 0; j < k; j++ {
		fit.StdErr[j] = math.Sqrt(sigma2 * inv.At(j, j))
	}

	return fit, nil
}

// Predict evaluates the fitted coefficients on a single row
func (f *Fit) Predict(row []float64) float64 {
	sum := 0.0
	for j, c := range f.Coef {
		if j < len(row) {
			sum += c * row[j]
		}
	}
	return sum
}

// acceptCondition tolerates ill-conditioned solutions but rejects singular ones.
func acceptCondition(err error) error {
	if err == nil {
		return nil
	}
	var cond mat.Condition
	if errors.As(err, &cond) && !math.IsInf(float64(cond), 1) {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrSingular, err)
}
