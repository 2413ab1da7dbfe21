package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ledgercast/ledgercast/internal/logging"
)

// KafkaConfig configures the Kafka queue. Subjects are used as topic names.
type KafkaConfig struct {
	Brokers      []string
	GroupID      string        // default "ledgercast-workers"
	BatchTimeout time.Duration // producer linger, default 10ms
	RequiredAcks int           // 0 none, 1 leader, -1 all; default 1
	Attempts     int           // handler and commit attempts per message, default 3
	Backoff      time.Duration // pause between attempts, default 100ms
}

// KafkaQueue publishes through one writer per topic and consumes each
// subscribed topic through the consumer group. A consumer group cannot
// skip a single message, so a failing handler is retried in place and the
// offset is committed once it succeeds or Attempts run out.
type KafkaQueue struct {
	config KafkaConfig
	logger *logging.Logger

	mu      sync.Mutex
	writers map[string]*kafka.Writer
	readers map[string]*kafkaReader
}

type kafkaReader struct {
	reader *kafka.Reader
	stop   context.CancelFunc
}

// newKafkaQueue validates cfg; brokers are not contacted until the first
// publish or subscribe.
func newKafkaQueue(cfg KafkaConfig, logger *logging.Logger) (*KafkaQueue, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers not configured")
	}
	if cfg.GroupID == "" {
		cfg.GroupID = "ledgercast-workers"
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 10 * time.Millisecond
	}
	if cfg.RequiredAcks == 0 {
		cfg.RequiredAcks = int(kafka.RequireOne)
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 100 * time.Millisecond
	}
	if logger == nil {
		logger = logging.Global()
	}

	return &KafkaQueue{
		config:  cfg,
		logger:  logger,
		writers: make(map[string]*kafka.Writer),
		readers: make(map[string]*kafkaReader),
	}, nil
}

func (q *KafkaQueue) writer(topic string) *kafka.Writer {
	q.mu.Lock()
	defer q.mu.Unlock()

	w, ok := q.writers[topic]
	if !ok {
		w = &kafka.Writer{
			Addr:                   kafka.TCP(q.config.Brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			BatchTimeout:           q.config.BatchTimeout,
			RequiredAcks:           kafka.RequiredAcks(q.config.RequiredAcks),
			MaxAttempts:            q.config.Attempts,
			AllowAutoTopicCreation: true,
		}
		q.writers[topic] = w
	}
	return w
}

func (q *KafkaQueue) Publish(ctx context.Context, subject string, data []byte) error {
	if err := q.writer(subject).WriteMessages(ctx, kafka.Message{Value: data}); err != nil {
		return fmt.Errorf("failed to publish to kafka topic %s: %w", subject, err)
	}
	return nil
}

// PublishBatch writes the messages of each topic in one call and reports
// how many were written.
func (q *KafkaQueue) PublishBatch(ctx context.Context, messages []BatchMessage) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	var order []string
	grouped := make(map[string][]kafka.Message)
	for _, m := range messages {
		if _, seen := grouped[m.Subject]; !seen {
			order = append(order, m.Subject)
		}
		grouped[m.Subject] = append(grouped[m.Subject], kafka.Message{Value: m.Data})
	}

	written := 0
	var lastErr error
	for _, topic := range order {
		msgs := grouped[topic]
		if err := q.writer(topic).WriteMessages(ctx, msgs...); err != nil {
			q.logger.Warn("Kafka batch write failed", "topic", topic, "count", len(msgs), "error", err)
			lastErr = err
			continue
		}
		written += len(msgs)
	}
	if written == 0 {
		return 0, fmt.Errorf("failed to publish batch: %w", lastErr)
	}
	return written, nil
}

func (q *KafkaQueue) Subscribe(subject string, handler MessageHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.readers[subject]; ok {
		return fmt.Errorf("already subscribed to topic: %s", subject)
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  q.config.Brokers,
		GroupID:  q.config.GroupID,
		Topic:    subject,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	ctx, cancel := context.WithCancel(context.Background())
	q.readers[subject] = &kafkaReader{reader: r, stop: cancel}

	go q.consume(ctx, r, handler)
	return nil
}

func (q *KafkaQueue) consume(ctx context.Context, r *kafka.Reader, handler MessageHandler) {
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.Warn("Kafka fetch failed", "topic", r.Config().Topic, "error", err)
			if !q.pause(ctx) {
				return
			}
			continue
		}

		if err := q.attempt(ctx, func() error { return handler(ctx, msg.Value) }); err != nil {
			if ctx.Err() != nil {
				return
			}
			q.logger.Error("Kafka handler gave up, committing past message",
				"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset,
				"attempts", q.config.Attempts, "error", err)
		}

		if err := q.attempt(ctx, func() error { return r.CommitMessages(ctx, msg) }); err != nil && ctx.Err() == nil {
			q.logger.Warn("Kafka commit failed", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}

// attempt runs fn up to Attempts times with Backoff in between
func (q *KafkaQueue) attempt(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < q.config.Attempts; i++ {
		if i > 0 && !q.pause(ctx) {
			return ctx.Err()
		}
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

// pause waits Backoff and reports false when ctx ends first
func (q *KafkaQueue) pause(ctx context.Context) bool {
	t := time.NewTimer(q.config.Backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (q *KafkaQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	kr, ok := q.readers[subject]
	if !ok {
		return fmt.Errorf("not subscribed to topic: %s", subject)
	}
	kr.stop()
	delete(q.readers, subject)
	return kr.reader.Close()
}

// Close stops every reader and flushes every writer
func (q *KafkaQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	var errs []error
	for subject, kr := range q.readers {
		kr.stop()
		errs = append(errs, kr.reader.Close())
		delete(q.readers, subject)
	}
	for topic, w := range q.writers {
		errs = append(errs, w.Close())
		delete(q.writers, topic)
	}
	return errors.Join(errs...)
}
