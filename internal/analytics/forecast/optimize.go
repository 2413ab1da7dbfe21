package forecast

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

const (
	defaultMaxEvaluations = 2000
	coefficientBound      = 0.99
	invalidObjective      = 1e100
)

// minimize runs Nelder-Mead from x0 and returns the best point evaluated.
// Hitting the evaluation budget is not an error as long as some point produced
// a finite objective.
func minimize(f func(x []float64) float64, x0 []float64, maxEvaluations int) ([]float64, float64, error) {
	if maxEvaluations <= 0 {
		maxEvaluations = defaultMaxEvaluations
	}

	bestF := math.Inf(1)
	var bestX []float64
	objective := func(x []float64) float64 {
		v := f(x)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return invalidObjective
		}
		if v < bestF {
			bestF = v
			bestX = append(bestX[:0], x...)
		}
		return v
	}

	problem := optimize.Problem{Func: objective}
	settings := &optimize.Settings{FuncEvaluations: maxEvaluations}
	_, err := optimize.Minimize(problem, x0, settings, &optimize.NelderMead{SimplexSize: 0.5})
	if bestX == nil {
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrOptimizer, err)
		}
		return nil, 0, fmt.Errorf("%w: no finite objective value", ErrOptimizer)
	}
	return bestX, bestF, nil
}

// bounded maps an unconstrained value into (-0.99, 0.99)
func bounded(u float64) float64 {
	return coefficientBound * math.Tanh(u)
}

// unitInterval maps an unconstrained value into (0, 1)
func unitInterval(u float64) float64 {
	return 1 / (1 + math.Exp(-u))
}

// logit is the inverse of unitInterval
func logit(p float64) float64 {
	return math.Log(p / (1 - p))
}
