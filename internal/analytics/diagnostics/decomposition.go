package diagnostics

import "math"

// SeasonalPattern returns the additive seasonal component of values using a
// classical decomposition: a centered moving average trend, then the mean of
// the detrended series at each position of the period, centered on zero.
// It returns nil when fewer than two full periods are available.
func SeasonalPattern(values []float64, period int) []float64 {
	n := len(values)
	if period < 2 || n < 2*period {
		return nil
	}

	trend := centeredMovingAverage(values, period)

	pattern := make([]float64, period)
	counts := make([]int, period)
	for i, v := range values {
		if math.IsNaN(trend[i]) {
			continue
		}
		pattern[i%period] += v - trend[i]
		counts[i%period]++
	}

	mean := 0.0
	for i := range pattern {
		if counts[i] > 0 {
			pattern[i] /= float64(counts[i])
		}
		mean += pattern[i]
	}
	mean /= float64(period)
	for i := range pattern {
		pattern[i] -= mean
	}

	return pattern
}

// centeredMovingAverage computes a 2xperiod moving average for even periods
// and a plain centered average for odd ones. Edges are NaN.
func centeredMovingAverage(values []float64, period int) []float64 {
	n := len(values)
	trend := make([]float64, n)
	for i := range trend {
		trend[i] = math.NaN()
	}

	half := period / 2
	for t := half; t < n-half; t++ {
		if period%2 == 0 {
			sum := 0.5*values[t-half] + 0.5*values[t+half]
			for j := t - half + 1; j < t+half; j++ {
				sum += values[j]
			}
			trend[t] = sum / float64(period)
		} else {
			sum := 0.0
			for j := t - half; j <= t+half; j++ {
				sum += values[j]
			}
			trend[t] = sum / float64(period)
		}
	}

	return trend
}
