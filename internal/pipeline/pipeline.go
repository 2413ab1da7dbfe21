// Package pipeline runs diagnostics, the model tournament, horizon
// validation, forecasting and anomaly detection for one series and returns a
// single result record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"github.com/ledgercast/ledgercast/internal/analytics"
	"github.com/ledgercast/ledgercast/internal/analytics/anomaly"
	"github.com/ledgercast/ledgercast/internal/analytics/diagnostics"
	"github.com/ledgercast/ledgercast/internal/analytics/duration"
	"github.com/ledgercast/ledgercast/internal/analytics/forecast"
	"github.com/ledgercast/ledgercast/internal/analytics/tournament"
)

var (
	// ErrInsufficientData is returned for empty or too short series
	ErrInsufficientData = errors.New("insufficient data")
	// ErrPanic wraps a panic recovered inside the pipeline
	ErrPanic = errors.New("pipeline panic")
)

// Config holds the settings of every stage
type Config struct {
	Diagnostics     diagnostics.Options
	Forecast        forecast.Options
	Tournament      tournament.Options
	Duration        duration.Options
	Anomaly         anomaly.Config
	Confidence      float64
	MinObservations int
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		Diagnostics:     diagnostics.DefaultOptions(),
		Forecast:        forecast.DefaultOptions(),
		Duration:        duration.DefaultOptions(),
		Anomaly:         anomaly.DefaultConfig(),
		Confidence:      0.95,
		MinObservations: 1,
	}
}

// Pipeline is safe for concurrent use; each Run owns its trace and result
type Pipeline struct {
	diagnostics     diagnostics.Options
	selector        *tournament.Selector
	validator       *duration.Validator
	forecaster      *forecast.Forecaster
	detector        *anomaly.Detector
	minObservations int
	sink            analytics.Sink
	now             func() time.Time
}

// New creates a pipeline over the default registry
func New(cfg Config, sink analytics.Sink) *Pipeline {
	return NewWithRegistry(cfg, forecast.DefaultRegistry(cfg.Forecast), sink)
}

// NewWithRegistry creates a pipeline over a custom adapter registry
func NewWithRegistry(cfg Config, registry *forecast.Registry, sink analytics.Sink) *Pipeline {
	if sink == nil {
		sink = analytics.NopSink{}
	}
	if cfg.MinObservations < 1 {
		cfg.MinObservations = 1
	}
	return &Pipeline{
		diagnostics:     cfg.Diagnostics,
		selector:        tournament.NewSelector(registry, cfg.Tournament),
		validator:       duration.NewValidator(cfg.Duration),
		forecaster:      forecast.NewForecaster(cfg.Confidence),
		detector:        anomaly.NewDetector(cfg.Anomaly),
		minObservations: cfg.MinObservations,
		sink:            sink,
		now:             time.Now,
	}
}

// Models lists the registered adapters in tournament order
func (p *Pipeline) Models() []string {
	return p.selector.Registry().Names()
}

// DurationOptions returns the horizon sizing rules
func (p *Pipeline) DurationOptions() duration.Options {
	return p.validator.Options()
}

// Run processes one series. It never panics; failures produce a record with
// status "error".
func (p *Pipeline) Run(ctx context.Context, s analytics.MonthlySeries, req duration.Request) (result *Result) {
	started := p.now()
	trace := analytics.NewTrace(p.sink)

	defer func() {
		if r := recover(); r != nil {
			p.sink.Warn("Pipeline panic recovered", "panic", r, "stack", string(debug.Stack()))
			result = errorResult(fmt.Errorf("%w: %v", ErrPanic, r), trace)
		}
		result.Timestamp = p.now().UTC()
		result.ElapsedMs = time.Since(started).Milliseconds()
	}()

	if s.Len() < p.minObservations {
		return errorResult(fmt.Errorf("%w: %d months, need at least %d", ErrInsufficientData, s.Len(), p.minObservations), trace)
	}

	report := diagnostics.Run(s, p.diagnostics, trace)

	tournamentStart := p.now()
	selection := p.selector.Select(ctx, s, report, trace)
	tournamentMs := p.now().Sub(tournamentStart).Milliseconds()
	if err := ctx.Err(); err != nil {
		return errorResult(fmt.Errorf("tournament interrupted: %w", err), trace)
	}

	decision := p.validator.Validate(s, req, trace)

	trained, projection, err := p.forecaster.Run(ctx, s, selection.Winner.Adapter, decision.Months, trace)
	if err != nil {
		return errorResult(fmt.Errorf("forecast: %w", err), trace)
	}

	fitted, ok := trained.InSample()
	records := p.detector.Detect(s, fitted, ok, trace)

	result = &Result{
		Status:       StatusSuccess,
		ModelInfo:    newModelInfo(trained, selection.Fallback),
		DurationInfo: newDurationInfo(decision),
		Diagnostics:  &report,
		History:      newHistory(s),
		Forecast:     newForecast(projection),
		Anomalies:    records,
		Ranking:      newRanking(selection.Ranking),
		TournamentMs: tournamentMs,
	}
	result.Explanations = trace.Lines()
	return result
}

func errorResult(err error, trace *analytics.Trace) *Result {
	trace.Warn("pipeline failed: %v", err)
	return &Result{
		Status:       StatusError,
		ErrorMessage: err.Error(),
		Explanations: trace.Lines(),
		Err:          err,
	}
}

func newModelInfo(t forecast.Trained, fallback bool) *ModelInfo {
	d := t.Descriptor()
	return &ModelInfo{
		Name:          t.Name,
		Family:        string(t.Family),
		Order:         d.Order,
		SeasonalOrder: d.SeasonalOrder,
		Score:         finite(t.Score()),
		Metric:        string(t.Metric()),
		Parameters:    finiteParameters(d.Parameters),
		Fallback:      fallback || t.Fallback,
	}
}

func newDurationInfo(d duration.Decision) *DurationInfo {
	return &DurationInfo{
		RequestedMonths: d.Requested,
		ValidatedMonths: d.Months,
		Code:            string(d.Code),
		Rationale:       d.Rationale,
		SparsityWarning: d.SparsityWarning,
		Density:         d.Density,
		SafeMonths:      d.SafeMonths,
	}
}

func newHistory(s analytics.MonthlySeries) *History {
	return &History{Dates: s.FormattedDates(), Values: s.Values()}
}

func newForecast(r forecast.Result) *Forecast {
	dates := make([]string, len(r.Dates))
	for i, d := range r.Dates {
		dates[i] = d.Format(analytics.DateLayout)
	}
	return &Forecast{Dates: dates, Values: r.Values, Lower: r.Lower, Upper: r.Upper}
}

func newRanking(candidates []tournament.Candidate) []RankEntry {
	out := make([]RankEntry, len(candidates))
	for i, c := range candidates {
		out[i] = RankEntry{
			Rank:   c.Rank,
			Name:   c.Name,
			Family: string(c.Family),
			Score:  finite(c.Score),
			Metric: string(c.Metric),
			Status: string(c.Status),
			Reason: c.Reason,
		}
	}
	return out
}

func finiteParameters(params map[string]float64) map[string]float64 {
	if len(params) == 0 {
		return nil
	}
	out := make(map[string]float64, len(params))
	for k, v := range params {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			out[k] = v
		}
	}
	return out
}

// finite returns nil for scores JSON cannot carry
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
