package redisqueue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xrelay"
)

// redisClient returns a connected client or skips the test.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func testQueue(t *testing.T, maxSize int) *Queue {
	t.Helper()
	client := redisClient(t)
	key := fmt.Sprintf("xrelay:test:%s:%d", t.Name(), time.Now().UnixNano())
	t.Cleanup(func() {
		_ = client.Del(context.Background(), key).Err()
		_ = client.Close()
	})
	return NewWithClient(client, key, maxSize)
}

func msg(content string) *xrelay.Message {
	return xrelay.NewMessage(content, "+15550001111",
		xrelay.Destination{Type: xrelay.MessageTypeSMS, Address: "+15550002222"})
}

func TestQueue_FIFOOrder(t *testing.T) {
	q := testQueue(t, 10)
	require.NoError(t, q.Enqueue(msg("a")))
	require.NoError(t, q.Enqueue(msg("b")))
	require.NoError(t, q.Enqueue(msg("c")))

	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Dequeue()
		require.NoError(t, err)
		assert.Equal(t, want, got.Content)
	}
}

func TestQueue_EmptyAndFull(t *testing.T) {
	q := testQueue(t, 1)

	_, err := q.Dequeue()
	assert.ErrorIs(t, err, xrelay.ErrQueueEmpty)

	require.NoError(t, q.Enqueue(msg("a")))
	assert.True(t, q.IsFull())
	assert.ErrorIs(t, q.Enqueue(msg("b")), xrelay.ErrQueueFull)

	_, err = q.Dequeue()
	require.NoError(t, err)
	assert.NoError(t, q.Enqueue(msg("c")))
}

func TestQueue_RoundTripPreservesRetryState(t *testing.T) {
	q := testQueue(t, 10)

	in := msg("stateful")
	in.RetryCount = 3
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	next := at.Add(4 * time.Second)
	in.LastRetryAt = &at
	in.NextRetryAt = &next
	in.BackoffStrategy = xrelay.StrategyLinear
	require.NoError(t, q.Enqueue(in))

	out, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 3, out.RetryCount)
	require.NotNil(t, out.LastRetryAt)
	assert.True(t, at.Equal(*out.LastRetryAt))
	require.NotNil(t, out.NextRetryAt)
	assert.True(t, next.Equal(*out.NextRetryAt))
	assert.Equal(t, xrelay.StrategyLinear, out.BackoffStrategy)
}

func TestQueue_StreamDeliversAndClosesOnCancel(t *testing.T) {
	q := testQueue(t, 10)
	require.NoError(t, q.Enqueue(msg("a")))

	ctx, cancel := context.WithCancel(context.Background())
	stream := q.Stream(ctx)

	select {
	case got := <-stream:
		assert.Equal(t, "a", got.Content)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for streamed message")
	}

	cancel()
	select {
	case _, ok := <-stream:
		assert.False(t, ok, "stream channel must close on cancel")
	case <-time.After(3 * time.Second):
		t.Fatal("stream did not close after cancel")
	}
}
