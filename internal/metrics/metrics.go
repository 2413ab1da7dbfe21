// Package metrics exposes Prometheus collectors for the prediction service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ledgercast/ledgercast/internal/pipeline"
)

const namespace = "ledgercast"

// Registry holds all collectors on a private Prometheus registry
type Registry struct {
	registry *prometheus.Registry

	// Pipeline
	PredictionDuration *prometheus.HistogramVec
	TournamentDuration prometheus.Histogram
	CandidateOutcomes  *prometheus.CounterVec
	Winners            *prometheus.CounterVec
	DurationCodes      *prometheus.CounterVec
	Anomalies          *prometheus.CounterVec
	PipelineErrors     *prometheus.CounterVec

	// Service
	CacheHits    prometheus.Counter
	CacheMisses  prometheus.Counter
	ActiveJobs   prometheus.Gauge
	Rejected     *prometheus.CounterVec
	PublishFails *prometheus.CounterVec
}

// NewRegistry creates and registers every collector
func NewRegistry() *Registry {
	durationBuckets := []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30}

	r := &Registry{
		registry: prometheus.NewRegistry(),

		PredictionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "prediction_duration_seconds",
				Help:      "Wall time of a full pipeline run",
				Buckets:   durationBuckets,
			},
			[]string{"status"},
		),

		TournamentDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "tournament_duration_seconds",
				Help:      "Wall time of the model tournament",
				Buckets:   durationBuckets,
			},
		),

		CandidateOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "candidate_outcomes_total",
				Help:      "Tournament candidates by model family and fit status",
			},
			[]string{"family", "status"},
		),

		Winners: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tournament_winners_total",
				Help:      "Forecasting models selected, by name",
			},
			[]string{"model", "fallback"},
		),

		DurationCodes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "duration_decisions_total",
				Help:      "Horizon decisions by rationale code",
			},
			[]string{"code"},
		),

		Anomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "anomalies_total",
				Help:      "Detected anomalies by severity",
			},
			[]string{"severity"},
		),

		PipelineErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_errors_total",
				Help:      "Failed predictions by error code",
			},
			[]string{"code"},
		),

		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Prediction cache hits",
			},
		),

		CacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Prediction cache misses",
			},
		),

		ActiveJobs: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_jobs",
				Help:      "Pipeline runs currently holding a worker slot",
			},
		),

		Rejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejected_requests_total",
				Help:      "Requests rejected before the pipeline ran, by reason",
			},
			[]string{"reason"},
		),

		PublishFails: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "publish_failures_total",
				Help:      "Event publishes that failed or were short-circuited",
			},
			[]string{"subject"},
		),
	}

	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.PredictionDuration,
		r.TournamentDuration,
		r.CandidateOutcomes,
		r.Winners,
		r.DurationCodes,
		r.Anomalies,
		r.PipelineErrors,
		r.CacheHits,
		r.CacheMisses,
		r.ActiveJobs,
		r.Rejected,
		r.PublishFails,
	)

	return r
}

// Handler serves the registry in the Prometheus text format
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Gatherer exposes the underlying registry
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.registry
}

// ObserveResult records everything a pipeline result reports
func (r *Registry) ObserveResult(res *pipeline.Result, elapsed time.Duration) {
	if res == nil {
		return
	}

	r.PredictionDuration.WithLabelValues(string(res.Status)).Observe(elapsed.Seconds())
	if !res.Succeeded() {
		return
	}

	r.TournamentDuration.Observe(float64(res.TournamentMs) / 1000)
	for _, entry := range res.Ranking {
		r.CandidateOutcomes.WithLabelValues(entry.Family, entry.Status).Inc()
	}
	if res.ModelInfo != nil {
		fallback := "false"
		if res.ModelInfo.Fallback {
			fallback = "true"
		}
		r.Winners.WithLabelValues(res.ModelInfo.Name, fallback).Inc()
	}
	if res.DurationInfo != nil {
		r.DurationCodes.WithLabelValues(res.DurationInfo.Code).Inc()
	}
	for _, a := range res.Anomalies {
		r.Anomalies.WithLabelValues(string(a.Severity)).Inc()
	}
}

// RecordCache records a cache lookup outcome
func (r *Registry) RecordCache(hit bool) {
	if hit {
		r.CacheHits.Inc()
		return
	}
	r.CacheMisses.Inc()
}

// RecordError records a failed prediction by service error code
func (r *Registry) RecordError(code string) {
	r.PipelineErrors.WithLabelValues(code).Inc()
}
