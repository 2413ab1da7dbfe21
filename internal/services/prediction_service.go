package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgercast/ledgercast/internal/analytics"
	"github.com/ledgercast/ledgercast/internal/analytics/duration"
	"github.com/ledgercast/ledgercast/internal/cache"
	"github.com/ledgercast/ledgercast/internal/logging"
	"github.com/ledgercast/ledgercast/internal/metrics"
	"github.com/ledgercast/ledgercast/internal/pipeline"
	"github.com/ledgercast/ledgercast/internal/store"
)

// monthLayout is accepted for series dates besides analytics.DateLayout
const monthLayout = "2006-01"

// SeriesPoint is one monthly amount as submitted by clients
type SeriesPoint struct {
	Date   string  `json:"date"`
	Amount float64 `json:"amount"`
}

// TransactionRecord is one raw dated amount. Amounts may be JSON numbers or
// decimal strings.
type TransactionRecord struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// PredictRequest carries either a monthly series or raw transactions, plus
// an optional requested horizon
type PredictRequest struct {
	Series       []SeriesPoint       `json:"series,omitempty"`
	Transactions []TransactionRecord `json:"transactions,omitempty"`
	Months       interface{}         `json:"months,omitempty"`
}

// Prediction is a pipeline result with its identity
type Prediction struct {
	ID        string           `json:"id"`
	CreatedAt time.Time        `json:"created_at"`
	Cached    bool             `json:"cached"`
	Result    *pipeline.Result `json:"result"`
}

// PredictionServiceConfig sizes the service
type PredictionServiceConfig struct {
	PoolSize         int
	Timeout          time.Duration
	MaxRequestMonths int
}

// PredictionService runs the forecasting pipeline for API and queue callers.
// At most PoolSize pipelines run at once; further callers wait for a slot
// until their deadline.
type PredictionService struct {
	logger    *logging.Logger
	pipeline  *pipeline.Pipeline
	cache     *cache.Codec
	store     store.Store
	events    *EventPublisher
	metrics   *metrics.Registry
	slots     chan struct{}
	timeout   time.Duration
	maxMonths int
	newID     func() string
	now       func() time.Time
}

// NewPredictionService creates a PredictionService. codec, events and
// registry may be nil.
func NewPredictionService(
	logger *logging.Logger,
	p *pipeline.Pipeline,
	st store.Store,
	codec *cache.Codec,
	events *EventPublisher,
	registry *metrics.Registry,
	cfg PredictionServiceConfig,
) *PredictionService {
	if logger == nil {
		logger = logging.Global()
	}
	if codec == nil {
		codec = cache.NewCodec(cache.NopCache{}, nil)
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRequestMonths <= 0 {
		cfg.MaxRequestMonths = 60
	}

	return &PredictionService{
		logger:    logger,
		pipeline:  p,
		cache:     codec,
		store:     st,
		events:    events,
		metrics:   registry,
		slots:     make(chan struct{}, cfg.PoolSize),
		timeout:   cfg.Timeout,
		maxMonths: cfg.MaxRequestMonths,
		newID:     uuid.NewString,
		now:       time.Now,
	}
}

// Predict validates the request, runs the pipeline and stores the result.
// A failed pipeline run is returned as a *ServiceError.
func (s *PredictionService) Predict(ctx context.Context, req *PredictRequest) (*Prediction, error) {
	started := s.now()

	prediction, err := s.predict(ctx, req)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordError(ErrorCode(err))
		}
		s.logger.WithContext(ctx).Warn("Prediction failed",
			"code", ErrorCode(err),
			"error", err,
			"latency_ms", time.Since(started).Milliseconds())
		return nil, err
	}

	s.logger.WithContext(ctx).Info("Prediction completed",
		"prediction_id", prediction.ID,
		"model", prediction.Result.ModelInfo.Name,
		"months", prediction.Result.DurationInfo.ValidatedMonths,
		"anomalies", len(prediction.Result.Anomalies),
		"cached", prediction.Cached,
		"latency_ms", time.Since(started).Milliseconds())
	return prediction, nil
}

func (s *PredictionService) predict(ctx context.Context, req *PredictRequest) (*Prediction, error) {
	if req == nil {
		return nil, NewServiceError(CodeInvalidRequest, "request body is required")
	}

	requested, err := s.requestedMonths(req.Months)
	if err != nil {
		return nil, err
	}

	series, notes, err := BuildSeries(req)
	if err != nil {
		return nil, err
	}

	key := cache.SeriesKey(series.At(0).Month.Format(analytics.DateLayout), series.Values(), requested.String())
	var cached Prediction
	hit, err := s.cache.Load(ctx, key, &cached)
	if err != nil {
		s.logger.Warn("Prediction cache read failed", "key", key, "error", err)
	}
	if s.metrics != nil {
		s.metrics.RecordCache(hit)
	}
	if hit && cached.Result != nil {
		cached.Cached = true
		s.publish(ctx, &cached)
		return &cached, nil
	}

	result, err := s.run(ctx, series, requested)
	if err != nil {
		return nil, err
	}
	if len(notes) > 0 {
		result.Explanations = append(notes, result.Explanations...)
	}

	prediction := &Prediction{
		ID:        s.newID(),
		CreatedAt: result.Timestamp,
		Result:    result,
	}
	ctx = logging.WithPredictionID(ctx, prediction.ID)

	if err := s.persist(ctx, prediction); err != nil {
		return nil, err
	}
	if err := s.cache.Save(ctx, key, prediction); err != nil {
		s.logger.Warn("Prediction cache write failed", "key", key, "error", err)
	}
	s.publish(ctx, prediction)

	return prediction, nil
}

// run executes the pipeline inside a worker slot under the service deadline
func (s *PredictionService) run(ctx context.Context, series analytics.MonthlySeries, requested duration.Request) (*pipeline.Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	select {
	case s.slots <- struct{}{}:
	case <-runCtx.Done():
		return nil, NewServiceError(CodeOverloaded, "no worker available before the deadline")
	}
	defer func() { <-s.slots }()

	if s.metrics != nil {
		s.metrics.ActiveJobs.Inc()
		defer s.metrics.ActiveJobs.Dec()
	}

	started := s.now()
	result := s.pipeline.Run(runCtx, series, requested)
	if s.metrics != nil {
		s.metrics.ObserveResult(result, s.now().Sub(started))
	}

	if result.Succeeded() {
		return result, nil
	}

	details := map[string]interface{}{"explanations": result.Explanations}
	switch {
	case errors.Is(result.Err, pipeline.ErrInsufficientData):
		return nil, NewServiceErrorWithDetails(CodeInsufficientData, result.ErrorMessage, details)
	case errors.Is(result.Err, context.DeadlineExceeded), errors.Is(result.Err, context.Canceled):
		return nil, NewServiceErrorWithDetails(CodeTimeout, result.ErrorMessage, details)
	default:
		return nil, NewServiceErrorWithDetails(CodeForecastFailed, result.ErrorMessage, details)
	}
}

func (s *PredictionService) persist(ctx context.Context, p *Prediction) error {
	payload, err := json.Marshal(p.Result)
	if err != nil {
		return NewServiceErrorf(CodeInternal, "failed to encode result: %v", err)
	}

	record := store.Prediction{
		ID:              p.ID,
		CreatedAt:       p.CreatedAt,
		ModelName:       p.Result.ModelInfo.Name,
		ValidatedMonths: p.Result.DurationInfo.ValidatedMonths,
		Rationale:       p.Result.DurationInfo.Rationale,
		AnomalyCount:    len(p.Result.Anomalies),
		Payload:         payload,
	}
	if err := s.store.Save(ctx, record); err != nil {
		s.logger.WithContext(ctx).Error("Failed to store prediction", "error", err)
		return NewServiceError(CodeInternal, "failed to store prediction")
	}
	return nil
}

// publish emits events; failures are logged and never fail the prediction.
// Anomalies of cached predictions were published when first computed.
func (s *PredictionService) publish(ctx context.Context, p *Prediction) {
	if s.events == nil {
		return
	}

	event := CompletedEvent{
		RequestID:       logging.RequestIDFromContext(ctx),
		PredictionID:    p.ID,
		Status:          string(p.Result.Status),
		ModelName:       p.Result.ModelInfo.Name,
		ValidatedMonths: p.Result.DurationInfo.ValidatedMonths,
		AnomalyCount:    len(p.Result.Anomalies),
		Cached:          p.Cached,
		Timestamp:       p.CreatedAt,
	}
	if err := s.events.PublishCompleted(ctx, event); err != nil {
		s.recordPublishFailure(ctx, s.events.subjects.Completed, err)
	}
	if p.Cached {
		return
	}

	if _, err := s.events.PublishAnomalies(ctx, p.ID, p.Result.Anomalies); err != nil {
		s.recordPublishFailure(ctx, s.events.subjects.Anomalies, err)
	}
}

func (s *PredictionService) recordPublishFailure(ctx context.Context, subject string, err error) {
	s.logger.WithContext(ctx).Warn("Event publish failed", "subject", subject, "error", err)
	if s.metrics != nil {
		s.metrics.PublishFails.WithLabelValues(subject).Inc()
	}
}

// requestedMonths rejects numeric requests outside [1, max]. Non-numeric
// values pass through; the duration validator ignores them.
func (s *PredictionService) requestedMonths(v interface{}) (duration.Request, error) {
	req := duration.FromValue(v)
	if !req.Present() {
		return req, nil
	}
	if str, ok := v.(string); ok && strings.TrimSpace(str) == "" {
		return duration.Auto(), nil
	}

	n, ok := req.Value()
	if !ok {
		return req, nil
	}
	if n < 1 || n > s.maxMonths {
		return req, NewServiceErrorWithDetails(CodeInvalidRequest,
			fmt.Sprintf("months must be between 1 and %d", s.maxMonths),
			map[string]interface{}{"months": v})
	}
	return req, nil
}

// Get returns a stored prediction by id
func (s *PredictionService) Get(ctx context.Context, id string) (*Prediction, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, NewServiceErrorf(CodeInvalidRequest, "invalid prediction id: %s", id)
	}

	record, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NewServiceErrorf(CodeNotFound, "prediction %s not found", id)
	}
	if err != nil {
		s.logger.WithContext(ctx).Error("Failed to load prediction", "prediction_id", id, "error", err)
		return nil, NewServiceError(CodeInternal, "failed to load prediction")
	}

	var result pipeline.Result
	if err := json.Unmarshal(record.Payload, &result); err != nil {
		return nil, NewServiceErrorf(CodeInternal, "stored prediction %s is corrupt", id)
	}
	return &Prediction{ID: record.ID, CreatedAt: record.CreatedAt, Result: &result}, nil
}

// List returns the newest stored predictions without their payloads
func (s *PredictionService) List(ctx context.Context, limit int) ([]store.Prediction, error) {
	records, err := s.store.List(ctx, limit)
	if err != nil {
		s.logger.WithContext(ctx).Error("Failed to list predictions", "error", err)
		return nil, NewServiceError(CodeInternal, "failed to list predictions")
	}
	for i := range records {
		records[i].Payload = nil
	}
	return records, nil
}

// Stats returns prediction and anomaly totals
func (s *PredictionService) Stats(ctx context.Context) (store.Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.logger.WithContext(ctx).Error("Failed to read stats", "error", err)
		return store.Stats{}, NewServiceError(CodeInternal, "failed to read stats")
	}
	return stats, nil
}

// Pipeline exposes the underlying pipeline
func (s *PredictionService) Pipeline() *pipeline.Pipeline {
	return s.pipeline
}

// MaxRequestMonths is the largest horizon a client may request
func (s *PredictionService) MaxRequestMonths() int {
	return s.maxMonths
}

// BuildSeries converts the request body to a MonthlySeries. Transactions are
// aggregated per month first; the returned lines describe that step.
func BuildSeries(req *PredictRequest) (analytics.MonthlySeries, []string, error) {
	switch {
	case len(req.Series) > 0 && len(req.Transactions) > 0:
		return analytics.MonthlySeries{}, nil, NewServiceError(CodeInvalidRequest, "provide either series or transactions, not both")
	case len(req.Series) > 0:
		series, err := seriesFromPoints(req.Series)
		return series, nil, err
	case len(req.Transactions) > 0:
		return seriesFromTransactions(req.Transactions)
	default:
		return analytics.MonthlySeries{}, nil, NewServiceError(CodeInsufficientData, "series or transactions are required")
	}
}

func seriesFromPoints(in []SeriesPoint) (analytics.MonthlySeries, error) {
	points := make([]analytics.Point, len(in))
	for i, p := range in {
		month, err := parseMonth(p.Date)
		if err != nil {
			return analytics.MonthlySeries{}, NewServiceErrorWithDetails(CodeInvalidSeries,
				fmt.Sprintf("invalid date at index %d: %q", i, p.Date),
				map[string]interface{}{"index": i})
		}
		points[i] = analytics.Point{Month: month, Amount: p.Amount}
	}

	series, err := analytics.NewMonthlySeries(points)
	if err != nil {
		return analytics.MonthlySeries{}, NewServiceError(CodeInvalidSeries, err.Error())
	}
	return series, nil
}

func seriesFromTransactions(in []TransactionRecord) (analytics.MonthlySeries, []string, error) {
	txs := make([]analytics.Transaction, len(in))
	for i, r := range in {
		tx, err := analytics.ParseTransaction(r.Date, r.Amount.String())
		if err != nil {
			return analytics.MonthlySeries{}, nil, NewServiceErrorWithDetails(CodeInvalidSeries,
				fmt.Sprintf("invalid transaction at index %d: %v", i, err),
				map[string]interface{}{"index": i})
		}
		txs[i] = tx
	}

	trace := analytics.NewTrace(nil)
	series, err := analytics.AggregateMonthly(txs, trace)
	if err != nil {
		return analytics.MonthlySeries{}, nil, NewServiceError(CodeInsufficientData, err.Error())
	}
	return series, trace.Lines(), nil
}

// parseMonth accepts "2024-03-01" or "2024-03"
func parseMonth(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(analytics.DateLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(monthLayout, s)
}
