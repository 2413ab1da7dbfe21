// Package worker consumes forecast jobs from the message queue and runs them
// through the prediction service.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ledgercast/ledgercast/internal/logging"
	"github.com/ledgercast/ledgercast/internal/queue"
	"github.com/ledgercast/ledgercast/internal/services"
)

// Job is the body of a request message. The request fields are inlined so a
// job looks like an HTTP prediction request with an id.
type Job struct {
	ID string `json:"id,omitempty"`
	services.PredictRequest
}

// Config holds worker configuration
type Config struct {
	Subject string // Subject jobs arrive on
}

// DefaultConfig returns default worker configuration
func DefaultConfig() Config {
	return Config{Subject: "forecast.requests"}
}

// Stats counts handled jobs
type Stats struct {
	Received  int64
	Succeeded int64
	Failed    int64
	Malformed int64
}

// Worker runs queued forecast jobs. Successful jobs publish their own
// completion events from the prediction service; failed jobs get an error
// event from here.
type Worker struct {
	config      Config
	logger      *logging.Logger
	subscriber  queue.Subscriber
	predictions *services.PredictionService
	events      *services.EventPublisher

	mu      sync.Mutex
	running bool
	stats   Stats
	now     func() time.Time
}

// New creates a Worker. events may be nil.
func New(cfg Config, logger *logging.Logger, subscriber queue.Subscriber, predictions *services.PredictionService, events *services.EventPublisher) *Worker {
	if cfg.Subject == "" {
		cfg.Subject = DefaultConfig().Subject
	}
	if logger == nil {
		logger = logging.Global()
	}
	return &Worker{
		config:      cfg,
		logger:      logger,
		subscriber:  subscriber,
		predictions: predictions,
		events:      events,
		now:         time.Now,
	}
}

// Start subscribes to the job subject
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("worker already running")
	}
	if err := w.subscriber.Subscribe(w.config.Subject, w.handle); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", w.config.Subject, err)
	}
	w.running = true

	w.logger.Info("Worker started", "subject", w.config.Subject)
	return nil
}

// Stop unsubscribes. Jobs already running finish on their own.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	if err := w.subscriber.Unsubscribe(w.config.Subject); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", w.config.Subject, err)
	}

	w.logger.Info("Worker stopped",
		"received", w.stats.Received,
		"succeeded", w.stats.Succeeded,
		"failed", w.stats.Failed)
	return nil
}

// Stats returns a snapshot of the job counters
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// handle runs one job. Malformed messages and permanent failures are
// acknowledged; timeouts, overload and internal errors return an error so the
// broker redelivers where it can.
func (w *Worker) handle(ctx context.Context, data []byte) error {
	w.count(func(s *Stats) { s.Received++ })

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		w.count(func(s *Stats) { s.Malformed++ })
		w.logger.Warn("Dropping malformed job", "bytes", len(data), "error", err)
		return nil
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	ctx = logging.WithRequestID(ctx, job.ID)

	if _, err := w.predictions.Predict(ctx, &job.PredictRequest); err != nil {
		w.count(func(s *Stats) { s.Failed++ })
		w.publishFailure(ctx, job.ID, err)
		if retryable(err) {
			return fmt.Errorf("job %s: %w", job.ID, err)
		}
		return nil
	}

	w.count(func(s *Stats) { s.Succeeded++ })
	return nil
}

func (w *Worker) publishFailure(ctx context.Context, jobID string, err error) {
	if w.events == nil {
		return
	}

	event := services.CompletedEvent{
		RequestID:    jobID,
		Status:       "error",
		ErrorCode:    services.ErrorCode(err),
		ErrorMessage: err.Error(),
		Timestamp:    w.now().UTC(),
	}
	if pubErr := w.events.PublishCompleted(ctx, event); pubErr != nil {
		w.logger.WithContext(ctx).Warn("Failed to publish job failure", "error", pubErr)
	}
}

func (w *Worker) count(update func(*Stats)) {
	w.mu.Lock()
	update(&w.stats)
	w.mu.Unlock()
}

func retryable(err error) bool {
	switch services.ErrorCode(err) {
	case services.CodeTimeout, services.CodeOverloaded, services.CodeInternal:
		return true
	default:
		return false
	}
}
