// Package diagnostics computes the summary statistics that narrow the
// candidate set of the model tournament: a unit-root stationarity signal and
// the amplitude of the yearly seasonal pattern.
package diagnostics

import (
	"github.com/ledgercast/ledgercast/internal/analytics"
)

// Options tunes the diagnostics
type Options struct {
	Period                  int     // seasonal period in months
	Significance            float64 // ADF p-value at or below which a series is stationary
	AmplitudeThreshold      float64 // seasonal/total amplitude ratio above which seasonality is present
	MinSeasonalObservations int     // shortest series the seasonality test runs on
}

// DefaultOptions returns the monthly defaults
func DefaultOptions() Options {
	return Options{
		Period:                  12,
		Significance:            0.05,
		AmplitudeThreshold:      0.1,
		MinSeasonalObservations: 24,
	}
}

// Report is the outcome of Run
type Report struct {
	Observations           int       `json:"observations"`
	ADF                    ADFResult `json:"adf"`
	IsStationary           bool      `json:"is_stationary"`
	SeasonalityDetermined  bool      `json:"seasonality_determined"`
	SeasonalAmplitude      float64   `json:"seasonal_amplitude"`
	SeasonalAmplitudeRatio float64   `json:"seasonal_amplitude_ratio"`
	HasSeasonality         bool      `json:"has_seasonality"`
	Period                 int       `json:"period"`
}

// Run computes the diagnostics of s. An indeterminate stationarity test is
// reported as non-stationary and an indeterminate seasonality test as no
// seasonality; neither is an error.
func Run(s analytics.MonthlySeries, opts Options, trace *analytics.Trace) Report {
	if opts.Period <= 0 {
		opts = DefaultOptions()
	}

	values := s.Values()
	report := Report{Observations: len(values), Period: opts.Period}

	trace.Add("Series diagnostics on %d months", len(values))

	report.ADF = ADF(values)
	if report.ADF.Determined {
		report.IsStationary = report.ADF.PValue <= opts.Significance
		verdict := "non-stationary"
		if report.IsStationary {
			verdict = "stationary"
		}
		trace.Add("ADF test: statistic=%.4f p-value=%.4f lags=%d -> %s",
			report.ADF.Statistic, report.ADF.PValue, report.ADF.Lags, verdict)
	} else {
		trace.Add("ADF test indeterminate (%d observations); treating series as non-stationary", len(values))
	}

	if len(values) < opts.MinSeasonalObservations {
		trace.Add("Not enough data for seasonality (%d < %d months); no seasonality assumed",
			len(values), opts.MinSeasonalObservations)
		return report
	}

	pattern := SeasonalPattern(values, opts.Period)
	if pattern == nil {
		trace.Add("Seasonality could not be computed; no seasonality assumed")
		return report
	}

	report.SeasonalityDetermined = true
	report.SeasonalAmplitude = amplitude(pattern)
	lo, hi := s.Range()
	if total := hi - lo; total > 0 {
		report.SeasonalAmplitudeRatio = report.SeasonalAmplitude / total
	}
	report.HasSeasonality = report.SeasonalAmplitudeRatio > opts.AmplitudeThreshold

	verdict := "no"
	if report.HasSeasonality {
		verdict = "yes"
	}
	trace.Add("Seasonality: %s (amplitude=%.0f, ratio=%.3f, period=%d)",
		verdict, report.SeasonalAmplitude, report.SeasonalAmplitudeRatio, opts.Period)

	return report
}

func amplitude(pattern []float64) float64 {
	lo, hi := pattern[0], pattern[0]
	for _, v := range pattern[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return hi - lo
}
