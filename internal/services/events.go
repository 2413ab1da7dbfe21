package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/ledgercast/ledgercast/internal/analytics/anomaly"
	"github.com/ledgercast/ledgercast/internal/logging"
	"github.com/ledgercast/ledgercast/internal/queue"
)

// CompletedEvent is published once per finished prediction. RequestID is
// the HTTP request id or the queue job id.
type CompletedEvent struct {
	RequestID       string    `json:"request_id,omitempty"`
	PredictionID    string    `json:"prediction_id,omitempty"`
	Status          string    `json:"status"`
	ModelName       string    `json:"model_name,omitempty"`
	ValidatedMonths int       `json:"validated_months,omitempty"`
	AnomalyCount    int       `json:"anomaly_count"`
	Cached          bool      `json:"cached,omitempty"`
	ErrorCode       string    `json:"error_code,omitempty"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// AnomalyEvent carries one detected anomaly
type AnomalyEvent struct {
	PredictionID string         `json:"prediction_id"`
	Anomaly      anomaly.Record `json:"anomaly"`
}

// Subjects names the queue subjects events go to
type Subjects struct {
	Completed string
	Anomalies string
}

// EventPublisher publishes prediction events through a circuit breaker so a
// failing broker does not slow every request down
type EventPublisher struct {
	publisher queue.Publisher
	subjects  Subjects
	breaker   *gobreaker.CircuitBreaker
	logger    *logging.Logger
}

// BreakerSettings configures the publish circuit breaker
type BreakerSettings struct {
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
}

// DefaultBreakerSettings trips after 5 consecutive failures for 30s
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}
}

// NewEventPublisher wraps a queue publisher. A nil publisher yields nil.
func NewEventPublisher(publisher queue.Publisher, subjects Subjects, settings BreakerSettings, logger *logging.Logger) *EventPublisher {
	if publisher == nil {
		return nil
	}
	if logger == nil {
		logger = logging.Global()
	}
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = 5
	}

	st := gobreaker.Settings{
		Name:        "event-publisher",
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
	}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn("Circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
	}

	return &EventPublisher{
		publisher: publisher,
		subjects:  subjects,
		breaker:   gobreaker.NewCircuitBreaker(st),
		logger:    logger,
	}
}

// State returns the breaker state
func (p *EventPublisher) State() gobreaker.State {
	return p.breaker.State()
}

// PublishCompleted publishes a completion event
func (p *EventPublisher) PublishCompleted(ctx context.Context, event CompletedEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode completed event: %w", err)
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		return nil, p.publisher.Publish(ctx, p.subjects.Completed, data)
	})
	return p.wrap(p.subjects.Completed, err)
}

// PublishAnomalies publishes one message per anomaly in a single batch and
// returns how many were accepted
func (p *EventPublisher) PublishAnomalies(ctx context.Context, predictionID string, records []anomaly.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	messages := make([]queue.BatchMessage, 0, len(records))
	for _, r := range records {
		data, err := json.Marshal(AnomalyEvent{PredictionID: predictionID, Anomaly: r})
		if err != nil {
			return 0, fmt.Errorf("failed to encode anomaly event: %w", err)
		}
		messages = append(messages, queue.BatchMessage{Subject: p.subjects.Anomalies, Data: data})
	}

	out, err := p.breaker.Execute(func() (interface{}, error) {
		return p.publisher.PublishBatch(ctx, messages)
	})
	if err != nil {
		return 0, p.wrap(p.subjects.Anomalies, err)
	}
	return out.(int), nil
}

func (p *EventPublisher) wrap(subject string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("publish to %s skipped: %w", subject, err)
	}
	return fmt.Errorf("publish to %s failed: %w", subject, err)
}
