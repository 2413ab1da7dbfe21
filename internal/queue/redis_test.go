package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgercast/ledgercast/internal/logging"
)

func startMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	return miniredis.RunT(t)
}

func newTestRedisQueue(t *testing.T, mr *miniredis.Miniredis) *RedisQueue {
	t.Helper()
	q, err := newRedisQueue(RedisConfig{
		URL:      mr.Addr(),
		Stream:   "test",
		Group:    "test-group",
		Consumer: "test-consumer",
		Block:    50 * time.Millisecond,
		Backoff:  10 * time.Millisecond,
	}, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestNewRedisQueue_Unreachable(t *testing.T) {
	_, err := newRedisQueue(RedisConfig{URL: "127.0.0.1:1"}, logging.NewNop())
	assert.Error(t, err)
}

func TestRedisQueue_Publish(t *testing.T) {
	mr := startMiniredis(t)
	q := newTestRedisQueue(t, mr)

	require.NoError(t, q.Publish(context.Background(), "forecast.completed", []byte(`{"id":"p1"}`)))

	entries, err := q.client.XRange(context.Background(), "test:forecast.completed", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, `{"id":"p1"}`, entries[0].Values["data"])
}

func TestRedisQueue_PublishBatch(t *testing.T) {
	mr := startMiniredis(t)
	q := newTestRedisQueue(t, mr)

	n, err := q.PublishBatch(context.Background(), []BatchMessage{
		{Subject: "forecast.anomalies", Data: []byte("a1")},
		{Subject: "forecast.anomalies", Data: []byte("a2")},
		{Subject: "forecast.completed", Data: []byte("c1")},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	count, err := q.client.XLen(context.Background(), "test:forecast.anomalies").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestRedisQueue_SubscribeAcksHandledMessages(t *testing.T) {
	mr := startMiniredis(t)
	q := newTestRedisQueue(t, mr)

	var mu sync.Mutex
	var got []string
	require.NoError(t, q.Subscribe("forecast.requests", func(_ context.Context, data []byte) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(data))
		return nil
	}))
	assert.Error(t, q.Subscribe("forecast.requests", func(context.Context, []byte) error { return nil }))

	require.NoError(t, q.Publish(context.Background(), "forecast.requests", []byte("job-1")))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1 && got[0] == "job-1"
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, q.Unsubscribe("forecast.requests"))
	assert.Error(t, q.Unsubscribe("forecast.requests"))
}

func TestRedisQueue_FailedHandlerLeavesEntryPending(t *testing.T) {
	mr := startMiniredis(t)
	q := newTestRedisQueue(t, mr)

	attempts := make(chan struct{}, 10)
	require.NoError(t, q.Subscribe("forecast.requests", func(context.Context, []byte) error {
		attempts <- struct{}{}
		return errors.New("not yet")
	}))
	require.NoError(t, q.Publish(context.Background(), "forecast.requests", []byte("job-1")))

	select {
	case <-attempts:
	case <-time.After(5 * time.Second):
		t.Fatal("handler not called")
	}

	assert.Eventually(t, func() bool {
		pending, err := q.client.XPending(context.Background(), "test:forecast.requests", "test-group").Result()
		return err == nil && pending.Count == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRedisQueue_ReclaimsIdlePendingEntry(t *testing.T) {
	mr := startMiniredis(t)
	q, err := newRedisQueue(RedisConfig{
		URL:       mr.Addr(),
		Stream:    "test",
		Consumer:  "test-consumer",
		Block:     20 * time.Millisecond,
		ClaimIdle: 60 * time.Millisecond,
	}, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	assert.Equal(t, "test-group", q.config.Group)

	var mu sync.Mutex
	attempts := 0
	require.NoError(t, q.Subscribe("forecast.requests", func(context.Context, []byte) error {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return errors.New("timeout")
		}
		return nil
	}))
	require.NoError(t, q.Publish(context.Background(), "forecast.requests", []byte("job-1")))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return attempts == 2
	}, 5*time.Second, 20*time.Millisecond)

	assert.Eventually(t, func() bool {
		pending, err := q.client.XPending(context.Background(), "test:forecast.requests", "test-group").Result()
		return err == nil && pending.Count == 0
	}, 2*time.Second, 20*time.Millisecond)
}
