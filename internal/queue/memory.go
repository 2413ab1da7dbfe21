package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ledgercast/ledgercast/internal/logging"
)

// ErrClosed is returned by operations on a closed queue
var ErrClosed = errors.New("queue closed")

const (
	memoryTopicCapacity = 10000

	// memoryMaxDeliveries bounds how often a failing message is handed back
	// to its subscriber before it is dropped.
	memoryMaxDeliveries = 3
)

type envelope struct {
	data       []byte
	deliveries int
}

type memoryTopic struct {
	buf  chan envelope
	stop context.CancelFunc // nil while nobody consumes the topic
}

// MemoryQueue is the single-process queue: one buffered channel per
// subject, at most one consumer each. A message whose handler fails goes
// to the back of its topic, up to memoryMaxDeliveries attempts, which
// mirrors the ack-or-redeliver contract of the broker-backed queues.
type MemoryQueue struct {
	mu     sync.RWMutex
	topics map[string]*memoryTopic
	closed bool
	logger *logging.Logger
}

func newMemoryQueue(logger *logging.Logger) *MemoryQueue {
	if logger == nil {
		logger = logging.Global()
	}
	return &MemoryQueue{topics: make(map[string]*memoryTopic), logger: logger}
}

// topic returns the topic for subject, creating it on first use. The
// caller holds q.mu.
func (q *MemoryQueue) topic(subject string) (*memoryTopic, error) {
	if q.closed {
		return nil, ErrClosed
	}
	t, ok := q.topics[subject]
	if !ok {
		t = &memoryTopic{buf: make(chan envelope, memoryTopicCapacity)}
		q.topics[subject] = t
	}
	return t, nil
}

func (q *MemoryQueue) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	t, err := q.topic(subject)
	q.mu.Unlock()
	if err != nil {
		return err
	}

	msg := envelope{data: append([]byte(nil), data...)}
	select {
	case t.buf <- msg:
		return nil
	default:
		return fmt.Errorf("memory queue full for subject %s", subject)
	}
}

// PublishBatch publishes each message in order. It fails only when no
// message could be published.
func (q *MemoryQueue) PublishBatch(ctx context.Context, messages []BatchMessage) (int, error) {
	published := 0
	var lastErr error
	for _, m := range messages {
		if err := q.Publish(ctx, m.Subject, m.Data); err != nil {
			lastErr = err
			continue
		}
		published++
	}
	if published == 0 && lastErr != nil {
		return 0, fmt.Errorf("failed to publish batch: %w", lastErr)
	}
	return published, nil
}

// Subscribe starts the consumer for subject. Messages published before
// the call are delivered first.
func (q *MemoryQueue) Subscribe(subject string, handler MessageHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, err := q.topic(subject)
	if err != nil {
		return err
	}
	if t.stop != nil {
		return fmt.Errorf("already subscribed to subject: %s", subject)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.stop = cancel
	go q.consume(ctx, subject, t.buf, handler)
	return nil
}

func (q *MemoryQueue) consume(ctx context.Context, subject string, buf chan envelope, handler MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-buf:
			msg.deliveries++
			err := handler(ctx, msg.data)
			if err == nil {
				continue
			}
			if msg.deliveries >= memoryMaxDeliveries || ctx.Err() != nil {
				q.logger.Warn("Dropping message after handler failure",
					"subject", subject, "deliveries", msg.deliveries, "error", err)
				continue
			}
			select {
			case buf <- msg:
			default:
				q.logger.Warn("Memory queue full, message not redelivered", "subject", subject, "error", err)
			}
		}
	}
}

func (q *MemoryQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	t, ok := q.topics[subject]
	if !ok || t.stop == nil {
		return fmt.Errorf("not subscribed to subject: %s", subject)
	}
	t.stop()
	t.stop = nil
	return nil
}

// Close stops every consumer and discards undelivered messages. Later
// calls return ErrClosed.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, t := range q.topics {
		if t.stop != nil {
			t.stop()
		}
	}
	q.topics = make(map[string]*memoryTopic)
	q.closed = true
	return nil
}

// PendingCount reports the undelivered messages waiting on subject
func (q *MemoryQueue) PendingCount(subject string) int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if t, ok := q.topics[subject]; ok {
		return len(t.buf)
	}
	return 0
}
