// Package tournament fits every applicable adapter on the full series and
// ranks them by score.
package tournament

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/ledgercast/ledgercast/internal/analytics"
	"github.com/ledgercast/ledgercast/internal/analytics/diagnostics"
	"github.com/ledgercast/ledgercast/internal/analytics/forecast"
)

// Status is the outcome of one candidate
type Status string

const (
	StatusFitted Status = "fitted"
	StatusFailed Status = "failed"
)

// ReasonDeadline is recorded for candidates that did not finish in time
const ReasonDeadline = "deadline exceeded"

// ErrAllCandidatesFailed is reported when the naive fallback had to be chosen
var ErrAllCandidatesFailed = errors.New("all candidates failed")

// Candidate is one ranked adapter
type Candidate struct {
	Rank    int
	Name    string
	Family  forecast.Family
	Score   float64 // +Inf when failed
	Metric  forecast.Metric
	Status  Status
	Reason  string
	Adapter forecast.Adapter
	Model   forecast.FittedModel
}

// Failed reports whether the candidate produced no usable model
func (c Candidate) Failed() bool {
	return c.Status == StatusFailed
}

// Selection is the ranked tournament result
type Selection struct {
	Winner  Candidate
	Ranking []Candidate
	// Fallback is set when no candidate fitted and the naive model won
	Fallback bool
	// Err is ErrAllCandidatesFailed when Fallback is set
	Err error
	// Metrics lists the distinct score metrics among fitted candidates
	Metrics []forecast.Metric
}

// MixedMetrics reports whether fitted candidates were scored on different scales
func (s Selection) MixedMetrics() bool {
	return len(s.Metrics) > 1
}

// Options controls evaluation
type Options struct {
	// Parallel fits adapters concurrently; the ranking is unchanged
	Parallel bool
	// Deadline bounds the whole tournament; zero means no deadline
	Deadline time.Duration
}

// Selector runs tournaments over a fixed registry
type Selector struct {
	registry *forecast.Registry
	opts     Options
	naive    *forecast.NaiveAdapter
}

// NewSelector creates a selector
func NewSelector(registry *forecast.Registry, opts Options) *Selector {
	return &Selector{registry: registry, opts: opts, naive: forecast.NewNaiveAdapter()}
}

// Registry returns the adapters competing in the tournament
func (s *Selector) Registry() *forecast.Registry {
	return s.registry
}

// Select evaluates every applicable adapter on the whole series
func (s *Selector) Select(ctx context.Context, series analytics.MonthlySeries, report diagnostics.Report, trace *analytics.Trace) Selection {
	if trace == nil {
		trace = analytics.NewTrace(nil)
	}

	var adapters []forecast.Adapter
	for _, a := range s.registry.Adapters() {
		if a.Applicable(report) {
			adapters = append(adapters, a)
		} else {
			trace.Add("tournament: %s not applicable", a.Name())
		}
	}
	trace.Add("tournament: %d candidates (parallel=%t)", len(adapters), s.opts.Parallel)

	if s.opts.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Deadline)
		defer cancel()
	}

	outcomes := s.evaluate(ctx, series, adapters)

	ranking := make([]Candidate, len(adapters))
	for i, a := range adapters {
		ranking[i] = candidateFrom(a, outcomes[i])
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		return less(ranking[i], ranking[j])
	})

	metrics := make([]forecast.Metric, 0, 2)
	seen := make(map[forecast.Metric]bool)
	for i := range ranking {
		c := &ranking[i]
		c.Rank = i + 1
		if c.Failed() {
			trace.Add("tournament: rank %d %s failed: %s", c.Rank, c.Name, c.Reason)
			continue
		}
		trace.Add("tournament: rank %d %s score=%.4f (%s)", c.Rank, c.Name, c.Score, c.Metric)
		if !seen[c.Metric] {
			seen[c.Metric] = true
			metrics = append(metrics, c.Metric)
		}
	}
	if len(metrics) > 1 {
		names := make([]string, len(metrics))
		for i, m := range metrics {
			names[i] = string(m)
		}
		trace.Add("tournament: ranking mixes metrics %s; scores are compared as-is", strings.Join(names, ", "))
	}

	selection := Selection{Ranking: ranking, Metrics: metrics}
	if len(ranking) > 0 && !ranking[0].Failed() {
		selection.Winner = ranking[0]
		trace.Add("tournament: winner %s", selection.Winner.Name)
		return selection
	}

	selection.Fallback = true
	selection.Err = ErrAllCandidatesFailed
	selection.Winner = s.fallback(series)
	trace.Warn("tournament: %v, falling back to %s", ErrAllCandidatesFailed, forecast.NaiveName)
	return selection
}

// evaluate fits adapters and returns outcomes by registry index. Adapters
// still running when ctx ends are reported as deadline failures.
func (s *Selector) evaluate(ctx context.Context, series analytics.MonthlySeries, adapters []forecast.Adapter) []forecast.Outcome {
	outcomes := make([]forecast.Outcome, len(adapters))
	if !s.opts.Parallel {
		for i, a := range adapters {
			outcomes[i] = await(ctx, start(ctx, a, series))
		}
		return outcomes
	}

	pending := make([]<-chan forecast.Outcome, len(adapters))
	for i, a := range adapters {
		pending[i] = start(ctx, a, series)
	}
	for i, ch := range pending {
		outcomes[i] = await(ctx, ch)
	}
	return outcomes
}

func start(ctx context.Context, a forecast.Adapter, series analytics.MonthlySeries) <-chan forecast.Outcome {
	ch := make(chan forecast.Outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- forecast.Outcome{Err: fmt.Errorf("%w: %s panicked: %v", forecast.ErrNumerical, a.Name(), r)}
			}
		}()
		ch <- a.Fit(ctx, series)
	}()
	return ch
}

func await(ctx context.Context, ch <-chan forecast.Outcome) forecast.Outcome {
	select {
	case out := <-ch:
		return normalize(out)
	case <-ctx.Done():
		// prefer a result that raced with the deadline
		select {
		case out := <-ch:
			return normalize(out)
		default:
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return forecast.Outcome{Err: errDeadline}
		}
		return forecast.Outcome{Err: ctx.Err()}
	}
}

var errDeadline = errors.New(ReasonDeadline)

func normalize(out forecast.Outcome) forecast.Outcome {
	if out.Err != nil && errors.Is(out.Err, context.DeadlineExceeded) {
		return forecast.Outcome{Err: errDeadline}
	}
	return out
}

func candidateFrom(a forecast.Adapter, out forecast.Outcome) Candidate {
	c := Candidate{
		Name:    a.Name(),
		Family:  a.Family(),
		Adapter: a,
		Score:   math.Inf(1),
	}
	if out.Err != nil || out.Model == nil {
		c.Status = StatusFailed
		c.Reason = "no model"
		if out.Err != nil {
			c.Reason = out.Err.Error()
		}
		return c
	}
	score := out.Model.Score()
	if math.IsNaN(score) || math.IsInf(score, 0) {
		c.Status = StatusFailed
		c.Reason = fmt.Sprintf("non-finite score %v", score)
		return c
	}
	c.Status = StatusFitted
	c.Model = out.Model
	c.Score = score
	c.Metric = out.Model.Metric()
	return c
}

func less(a, b Candidate) bool {
	if a.Failed() || b.Failed() {
		return !a.Failed() && b.Failed()
	}
	return a.Score < b.Score
}

func (s *Selector) fallback(series analytics.MonthlySeries) Candidate {
	c := Candidate{
		Name:    forecast.NaiveName,
		Family:  forecast.FamilyNaive,
		Adapter: s.naive,
		Metric:  forecast.MetricNone,
	}
	out := s.naive.Fit(context.Background(), series)
	if out.Err != nil {
		c.Status = StatusFailed
		c.Reason = out.Err.Error()
		c.Score = math.Inf(1)
		return c
	}
	c.Status = StatusFitted
	c.Model = out.Model
	return c
}
