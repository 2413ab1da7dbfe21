package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ledgercast/ledgercast/internal/logging"
)

// NATSConfig configures the JetStream queue. Each subject gets its own
// stream named "<StreamPrefix>-<subject>".
type NATSConfig struct {
	URL             string
	Username        string
	Password        string
	StreamPrefix    string        // default "ledgercast"
	AckWait         time.Duration // unacked messages come back after this, default 30s
	MaxDeliver      int           // delivery attempts per message, default 3
	RedeliveryDelay time.Duration // base nak delay, grows with each attempt; default 1s
}

// NATSQueue publishes with JetStream acks and consumes through durable
// push consumers with manual acks. A failed message is nak'ed with a delay
// that grows per attempt and terminated on its last allowed delivery.
type NATSQueue struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	config NATSConfig
	logger *logging.Logger

	mu      sync.RWMutex
	streams map[string]bool
	subs    map[string]*natsSubscription
}

type natsSubscription struct {
	sub    *nats.Subscription
	cancel context.CancelFunc
}

// newNATSQueue connects to NATS and creates a JetStream context
func newNATSQueue(cfg NATSConfig, logger *logging.Logger) (*NATSQueue, error) {
	var opts []nats.Option
	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	q, err := newNATSQueueWithConn(conn, cfg, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

// newNATSQueueWithConn wraps an existing connection
func newNATSQueueWithConn(conn *nats.Conn, cfg NATSConfig, logger *logging.Logger) (*NATSQueue, error) {
	js, err := conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "ledgercast"
	}
	if cfg.AckWait == 0 {
		cfg.AckWait = 30 * time.Second
	}
	if cfg.MaxDeliver == 0 {
		cfg.MaxDeliver = 3
	}
	if cfg.RedeliveryDelay <= 0 {
		cfg.RedeliveryDelay = time.Second
	}
	if logger == nil {
		logger = logging.Global()
	}

	return &NATSQueue{
		conn:    conn,
		js:      js,
		config:  cfg,
		logger:  logger,
		streams: make(map[string]bool),
		subs:    make(map[string]*natsSubscription),
	}, nil
}

// ensureStream creates the stream for subject on first use; JetStream
// rejects publishes to subjects no stream captures.
func (q *NATSQueue) ensureStream(subject string) error {
	q.mu.RLock()
	known := q.streams[subject]
	q.mu.RUnlock()
	if known {
		return nil
	}

	name := q.config.StreamPrefix + "-" + natsName(subject)
	if _, err := q.js.StreamInfo(name); err != nil {
		if !errors.Is(err, nats.ErrStreamNotFound) {
			return fmt.Errorf("failed to look up stream %s: %w", name, err)
		}
		_, err = q.js.AddStream(&nats.StreamConfig{
			Name:     name,
			Subjects: []string{subject},
			Storage:  nats.FileStorage,
		})
		if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return fmt.Errorf("failed to create stream for subject %s: %w", subject, err)
		}
	}

	q.mu.Lock()
	q.streams[subject] = true
	q.mu.Unlock()
	return nil
}

// Publish publishes a message and waits for the JetStream ack
func (q *NATSQueue) Publish(ctx context.Context, subject string, data []byte) error {
	if err := q.ensureStream(subject); err != nil {
		return err
	}
	if _, err := q.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("failed to publish to subject %s: %w", subject, err)
	}
	return nil
}

// PublishBatch queues every message asynchronously, then waits for all acks
// or the context, whichever comes first
func (q *NATSQueue) PublishBatch(ctx context.Context, messages []BatchMessage) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	futures := make([]nats.PubAckFuture, 0, len(messages))
	for _, msg := range messages {
		if err := q.ensureStream(msg.Subject); err != nil {
			q.logger.Warn("Skipping batch message", "subject", msg.Subject, "error", err)
			continue
		}
		future, err := q.js.PublishAsync(msg.Subject, msg.Data)
		if err != nil {
			q.logger.Warn("Failed to queue batch message", "subject", msg.Subject, "error", err)
			continue
		}
		futures = append(futures, future)
	}

	select {
	case <-q.js.PublishAsyncComplete():
	case <-ctx.Done():
		return 0, fmt.Errorf("timeout waiting for batch publish: %w", ctx.Err())
	}

	successCount := 0
	for _, future := range futures {
		select {
		case <-future.Ok():
			successCount++
		case err := <-future.Err():
			q.logger.Warn("Batch message not acknowledged", "subject", future.Msg().Subject, "error", err)
		}
	}

	if successCount == 0 {
		return 0, fmt.Errorf("failed to publish batch of %d messages", len(messages))
	}
	return successCount, nil
}

// Subscribe attaches a durable consumer that starts from the first
// message still in the stream.
func (q *NATSQueue) Subscribe(subject string, handler MessageHandler) error {
	q.mu.RLock()
	_, exists := q.subs[subject]
	q.mu.RUnlock()
	if exists {
		return fmt.Errorf("already subscribed to subject: %s", subject)
	}

	if err := q.ensureStream(subject); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := q.js.Subscribe(subject, func(msg *nats.Msg) { q.handle(ctx, msg, handler) },
		nats.Durable("consumer-"+natsName(subject)),
		nats.ManualAck(),
		nats.MaxAckPending(100),
		nats.AckWait(q.config.AckWait),
		nats.MaxDeliver(q.config.MaxDeliver),
		nats.DeliverAll(),
	)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to subject %s: %w", subject, err)
	}

	q.mu.Lock()
	q.subs[subject] = &natsSubscription{sub: sub, cancel: cancel}
	q.mu.Unlock()
	return nil
}

func (q *NATSQueue) handle(ctx context.Context, msg *nats.Msg, handler MessageHandler) {
	err := handler(ctx, msg.Data)
	if err == nil {
		_ = msg.Ack()
		return
	}

	delivered := uint64(1)
	if meta, merr := msg.Metadata(); merr == nil {
		delivered = meta.NumDelivered
	}
	if delivered >= uint64(q.config.MaxDeliver) {
		q.logger.Error("NATS message failed on its last delivery",
			"subject", msg.Subject, "deliveries", delivered, "error", err)
		_ = msg.Term()
		return
	}

	delay := q.config.RedeliveryDelay * time.Duration(delivered)
	q.logger.Warn("NATS handler failed, message will be redelivered",
		"subject", msg.Subject, "deliveries", delivered, "retry_in", delay.String(), "error", err)
	_ = msg.NakWithDelay(delay)
}

// Unsubscribe unsubscribes from a subject
func (q *NATSQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	s, exists := q.subs[subject]
	if !exists {
		return fmt.Errorf("not subscribed to subject: %s", subject)
	}

	s.cancel()
	delete(q.subs, subject)
	if err := s.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("failed to unsubscribe from subject %s: %w", subject, err)
	}
	return nil
}

// Close drains subscriptions and closes the connection
func (q *NATSQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for subject, s := range q.subs {
		s.cancel()
		if err := s.sub.Unsubscribe(); err != nil {
			q.logger.Warn("Failed to unsubscribe on close", "subject", subject, "error", err)
		}
		delete(q.subs, subject)
	}

	q.conn.Close()
	return nil
}

// natsName maps a subject to a valid stream or consumer name. Only
// letters, digits, dash and underscore are allowed there.
func natsName(subject string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, subject)
}
