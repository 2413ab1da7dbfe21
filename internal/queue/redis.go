package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgercast/ledgercast/internal/logging"
)

// RedisConfig configures the Redis Streams queue. Each subject maps to the
// stream "<Stream>:<subject>" read through one consumer group.
type RedisConfig struct {
	URL       string // redis://... or host:port
	Password  string
	DB        int
	Stream    string        // default "ledgercast"
	Group     string        // default "ledgercast-group"
	Consumer  string        // default hostname
	Block     time.Duration // XREADGROUP block, default 5s
	Backoff   time.Duration // pause after a read error, default 1s
	ClaimIdle time.Duration // pending entries idle this long are redelivered, default 30s
}

func (c *RedisConfig) applyDefaults() {
	if c.Stream == "" {
		c.Stream = "ledgercast"
	}
	if c.Group == "" {
		c.Group = c.Stream + "-group"
	}
	if c.Consumer == "" {
		c.Consumer, _ = os.Hostname()
		if c.Consumer == "" {
			c.Consumer = "ledgercast-worker"
		}
	}
	if c.Block <= 0 {
		c.Block = 5 * time.Second
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = 30 * time.Second
	}
}

// RedisQueue carries jobs and events over Redis Streams. Handled entries
// are acked; failed ones stay pending until ClaimIdle passes, then any
// consumer of the group claims and retries them.
type RedisQueue struct {
	client *redis.Client
	config RedisConfig
	logger *logging.Logger

	mu      sync.Mutex
	readers map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func newRedisQueue(cfg RedisConfig, logger *logging.Logger) (*RedisQueue, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		opts = &redis.Options{Addr: cfg.URL, Password: cfg.Password, DB: cfg.DB}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	cfg.applyDefaults()
	if logger == nil {
		logger = logging.Global()
	}
	return &RedisQueue{
		client:  client,
		config:  cfg,
		logger:  logger,
		readers: make(map[string]context.CancelFunc),
	}, nil
}

func (q *RedisQueue) stream(subject string) string {
	return q.config.Stream + ":" + subject
}

func (q *RedisQueue) add(ctx context.Context, c redis.Cmdable, subject string, data []byte) *redis.StringCmd {
	return c.XAdd(ctx, &redis.XAddArgs{
		Stream: q.stream(subject),
		Values: map[string]interface{}{"data": data},
	})
}

func (q *RedisQueue) Publish(ctx context.Context, subject string, data []byte) error {
	if err := q.add(ctx, q.client, subject, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to Redis stream %s: %w", q.stream(subject), err)
	}
	return nil
}

// PublishBatch sends all messages in one pipeline and counts the entries
// Redis accepted.
func (q *RedisQueue) PublishBatch(ctx context.Context, messages []BatchMessage) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	cmds := make([]*redis.StringCmd, len(messages))
	_, execErr := q.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, m := range messages {
			cmds[i] = q.add(ctx, p, m.Subject, m.Data)
		}
		return nil
	})

	accepted := 0
	for _, cmd := range cmds {
		if cmd.Err() == nil {
			accepted++
		}
	}
	if accepted == 0 {
		return 0, fmt.Errorf("failed to execute batch publish: %w", execErr)
	}
	return accepted, nil
}

// Subscribe creates the consumer group when missing and starts a reader
func (q *RedisQueue) Subscribe(subject string, handler MessageHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.readers[subject]; ok {
		return fmt.Errorf("already subscribed to subject: %s", subject)
	}

	stream := q.stream(subject)
	ctx, cancel := context.WithCancel(context.Background())
	err := q.client.XGroupCreateMkStream(ctx, stream, q.config.Group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		cancel()
		return fmt.Errorf("failed to create consumer group on %s: %w", stream, err)
	}

	q.readers[subject] = cancel
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.read(ctx, stream, handler)
	}()
	return nil
}

func (q *RedisQueue) read(ctx context.Context, stream string, handler MessageHandler) {
	lastClaim := time.Now()
	for ctx.Err() == nil {
		if time.Since(lastClaim) >= q.config.ClaimIdle {
			q.reclaim(ctx, stream, handler)
			lastClaim = time.Now()
		}

		res, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    q.config.Group,
			Consumer: q.config.Consumer,
			Streams:  []string{stream, ">"},
			Count:    100,
			Block:    q.config.Block,
		}).Result()
		switch {
		case ctx.Err() != nil, errors.Is(err, redis.Nil):
			continue
		case err != nil:
			q.logger.Warn("Redis stream read failed", "stream", stream, "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(q.config.Backoff):
			}
			continue
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				q.handle(ctx, stream, msg, handler)
			}
		}
	}
}

// reclaim takes over entries another delivery left pending for ClaimIdle
// and hands them to handler again.
func (q *RedisQueue) reclaim(ctx context.Context, stream string, handler MessageHandler) {
	msgs, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    q.config.Group,
		Consumer: q.config.Consumer,
		MinIdle:  q.config.ClaimIdle,
		Start:    "0-0",
		Count:    100,
	}).Result()
	if err != nil {
		if ctx.Err() == nil {
			q.logger.Warn("Redis pending claim failed", "stream", stream, "error", err)
		}
		return
	}
	for _, msg := range msgs {
		q.handle(ctx, stream, msg, handler)
	}
}

func (q *RedisQueue) handle(ctx context.Context, stream string, msg redis.XMessage, handler MessageHandler) {
	data, ok := msg.Values["data"].(string)
	if !ok {
		q.logger.Warn("Acking stream entry without data field", "stream", stream, "id", msg.ID)
		q.client.XAck(ctx, stream, q.config.Group, msg.ID)
		return
	}
	if err := handler(ctx, []byte(data)); err != nil {
		q.logger.Warn("Stream entry left pending", "stream", stream, "id", msg.ID, "error", err)
		return
	}
	q.client.XAck(ctx, stream, q.config.Group, msg.ID)
}

func (q *RedisQueue) Unsubscribe(subject string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	cancel, ok := q.readers[subject]
	if !ok {
		return fmt.Errorf("not subscribed to subject: %s", subject)
	}
	cancel()
	delete(q.readers, subject)
	return nil
}

// Close stops every reader, waits for in-flight handlers and closes the
// client.
func (q *RedisQueue) Close() error {
	q.mu.Lock()
	for subject, cancel := range q.readers {
		cancel()
		delete(q.readers, subject)
	}
	q.mu.Unlock()

	q.wg.Wait()
	return q.client.Close()
}
