package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgercast/ledgercast/internal/analytics"
	"github.com/ledgercast/ledgercast/internal/analytics/diagnostics"
	"github.com/ledgercast/ledgercast/internal/analytics/forecast"
	"github.com/ledgercast/ledgercast/internal/config"
	"github.com/ledgercast/ledgercast/internal/logging"
	"github.com/ledgercast/ledgercast/internal/pipeline"
	"github.com/ledgercast/ledgercast/internal/queue"
	"github.com/ledgercast/ledgercast/internal/services"
	"github.com/ledgercast/ledgercast/internal/store"
)

const (
	requestSubject   = "forecast.requests"
	completedSubject = "forecast.completed"
)

// failingAdapter forces the naive fallback
type failingAdapter struct{}

func (failingAdapter) Name() string                       { return "FAILING" }
func (failingAdapter) Family() forecast.Family            { return forecast.FamilyARIMA }
func (failingAdapter) Applicable(diagnostics.Report) bool { return true }
func (failingAdapter) Fit(context.Context, analytics.MonthlySeries) forecast.Outcome {
	return forecast.Outcome{Err: forecast.ErrOptimizer}
}

// blockingAdapter fits only when the context ends
type blockingAdapter struct{}

func (blockingAdapter) Name() string                       { return "BLOCKING" }
func (blockingAdapter) Family() forecast.Family            { return forecast.FamilyARIMA }
func (blockingAdapter) Applicable(diagnostics.Report) bool { return true }
func (blockingAdapter) Fit(ctx context.Context, _ analytics.MonthlySeries) forecast.Outcome {
	<-ctx.Done()
	return forecast.Outcome{Err: ctx.Err()}
}

type eventCollector struct {
	mu     sync.Mutex
	events []services.CompletedEvent
}

func (c *eventCollector) handle(_ context.Context, data []byte) error {
	var event services.CompletedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return err
	}
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
	return nil
}

func (c *eventCollector) snapshot() []services.CompletedEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]services.CompletedEvent(nil), c.events...)
}

type fixture struct {
	worker    *Worker
	queue     queue.Queue
	store     *store.MemoryStore
	collector *eventCollector
}

func newFixture(t *testing.T, adapter forecast.Adapter, timeout time.Duration) *fixture {
	t.Helper()

	logger := logging.NewNop()
	q, err := queue.NewQueue(config.QueueConfig{Type: "memory"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })

	registry, err := forecast.NewRegistry(adapter)
	require.NoError(t, err)

	st := store.NewMemoryStore()
	events := services.NewEventPublisher(q, services.Subjects{
		Completed: completedSubject,
		Anomalies: "forecast.anomalies",
	}, services.DefaultBreakerSettings(), logger)
	predictions := services.NewPredictionService(logger,
		pipeline.NewWithRegistry(pipeline.DefaultConfig(), registry, logger),
		st, nil, events, nil,
		services.PredictionServiceConfig{PoolSize: 1, Timeout: timeout})

	collector := &eventCollector{}
	require.NoError(t, q.Subscribe(completedSubject, collector.handle))

	return &fixture{
		worker:    New(Config{Subject: requestSubject}, logger, q, predictions, events),
		queue:     q,
		store:     st,
		collector: collector,
	}
}

func seriesJob(id string, values ...float64) []byte {
	job := Job{ID: id}
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, v := range values {
		job.Series = append(job.Series, services.SeriesPoint{
			Date:   analytics.AddMonths(start, i).Format(analytics.DateLayout),
			Amount: v,
		})
	}
	data, _ := json.Marshal(job)
	return data
}

func TestJob_InlinesRequest(t *testing.T) {
	var job Job
	err := json.Unmarshal([]byte(`{"id":"job-1","series":[{"date":"2024-01-01","amount":5}],"months":3}`), &job)
	require.NoError(t, err)

	assert.Equal(t, "job-1", job.ID)
	require.Len(t, job.Series, 1)
	assert.Equal(t, 5.0, job.Series[0].Amount)
	assert.Equal(t, 3.0, job.Months)
}

func TestWorker_ProcessesQueuedJob(t *testing.T) {
	f := newFixture(t, failingAdapter{}, 5*time.Second)
	require.NoError(t, f.worker.Start())
	defer func() { _ = f.worker.Stop() }()

	ctx := context.Background()
	require.NoError(t, f.queue.Publish(ctx, requestSubject, seriesJob("job-42", 10, 30, 20, 40, 25)))

	require.Eventually(t, func() bool {
		return len(f.collector.snapshot()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	event := f.collector.snapshot()[0]
	assert.Equal(t, "job-42", event.RequestID)
	assert.Equal(t, "success", event.Status)
	assert.NotEmpty(t, event.PredictionID)
	assert.Equal(t, 3, event.ValidatedMonths)

	stats, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Predictions)

	ws := f.worker.Stats()
	assert.Equal(t, int64(1), ws.Received)
	assert.Equal(t, int64(1), ws.Succeeded)
}

func TestWorker_StartTwice(t *testing.T) {
	f := newFixture(t, failingAdapter{}, time.Second)
	require.NoError(t, f.worker.Start())
	assert.Error(t, f.worker.Start())
	require.NoError(t, f.worker.Stop())
	assert.NoError(t, f.worker.Stop())
}

func TestWorker_MalformedJobIsAcked(t *testing.T) {
	f := newFixture(t, failingAdapter{}, time.Second)

	err := f.worker.handle(context.Background(), []byte("{not json"))
	assert.NoError(t, err)

	ws := f.worker.Stats()
	assert.Equal(t, int64(1), ws.Malformed)
	assert.Empty(t, f.collector.snapshot())
}

func TestWorker_PermanentFailurePublishesError(t *testing.T) {
	f := newFixture(t, failingAdapter{}, time.Second)

	err := f.worker.handle(context.Background(), []byte(`{"id":"job-7","series":[]}`))
	assert.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(f.collector.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	event := f.collector.snapshot()[0]
	assert.Equal(t, "job-7", event.RequestID)
	assert.Equal(t, "error", event.Status)
	assert.Equal(t, services.CodeInsufficientData, event.ErrorCode)
	assert.NotEmpty(t, event.ErrorMessage)
	assert.Equal(t, int64(1), f.worker.Stats().Failed)
}

func TestWorker_TimeoutIsRetried(t *testing.T) {
	f := newFixture(t, blockingAdapter{}, 50*time.Millisecond)

	err := f.worker.handle(context.Background(), seriesJob("job-9", 1, 2, 3, 4, 5, 6))
	require.Error(t, err)
	assert.Equal(t, services.CodeTimeout, services.ErrorCode(err))

	require.Eventually(t, func() bool {
		return len(f.collector.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, services.CodeTimeout, f.collector.snapshot()[0].ErrorCode)
}

func TestWorker_GeneratesMissingJobID(t *testing.T) {
	f := newFixture(t, failingAdapter{}, 5*time.Second)

	require.NoError(t, f.worker.handle(context.Background(), seriesJob("", 4, 5, 6, 7)))

	require.Eventually(t, func() bool {
		return len(f.collector.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.NotEmpty(t, f.collector.snapshot()[0].RequestID)
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{services.CodeTimeout, true},
		{services.CodeOverloaded, true},
		{services.CodeInternal, true},
		{services.CodeInvalidRequest, false},
		{services.CodeInsufficientData, false},
		{services.CodeForecastFailed, false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, retryable(services.NewServiceError(tt.code, "x")))
		})
	}
}
