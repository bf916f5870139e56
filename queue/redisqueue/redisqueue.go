// Package redisqueue provides a Redis-list-backed bounded FIFO queue, for
// relays that must survive process restarts or share a queue between two
// processes. LPUSH/RPOP keep FIFO order; a Lua script makes the capacity
// check and push atomic.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trickstertwo/xrelay"
)

// DefaultMaxSize is used when no capacity is configured.
const DefaultMaxSize = 1000

// blockTimeout bounds each BRPOP so Stream can observe ctx cancellation.
const blockTimeout = 1 * time.Second

// pushBounded pushes ARGV[1] unless the list already holds ARGV[2] entries.
var pushBounded = redis.NewScript(`
if redis.call('LLEN', KEYS[1]) >= tonumber(ARGV[2]) then
	return 0
end
redis.call('LPUSH', KEYS[1], ARGV[1])
return 1
`)

// Config for the Redis queue.
type Config struct {
	Addr     string
	Password string
	DB       int

	// Key is the Redis list holding the queue.
	Key string
	// MaxSize is the queue capacity (DefaultMaxSize if <= 0).
	MaxSize int
}

// Queue is a bounded FIFO over a Redis list. Messages travel as JSON.
type Queue struct {
	client  redis.UniversalClient
	key     string
	maxSize int
	ownsCli bool
}

var _ xrelay.Queue = (*Queue)(nil)

// New connects a dedicated Redis client for the queue.
func New(cfg Config) (*Queue, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redisqueue: addr required")
	}
	if cfg.Key == "" {
		return nil, errors.New("redisqueue: key required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	q := NewWithClient(client, cfg.Key, cfg.MaxSize)
	q.ownsCli = true
	return q, nil
}

// NewWithClient wraps an existing client (shared pools, tests).
func NewWithClient(client redis.UniversalClient, key string, maxSize int) *Queue {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Queue{client: client, key: key, maxSize: maxSize}
}

// Ping verifies connectivity.
func (q *Queue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close releases the client if this queue owns it.
func (q *Queue) Close() error {
	if q.ownsCli {
		return q.client.Close()
	}
	return nil
}

// Enqueue appends msg, or returns ErrQueueFull at capacity.
func (q *Queue) Enqueue(msg *xrelay.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("redisqueue: encode message: %w", err)
	}
	ok, err := pushBounded.Run(context.Background(), q.client, []string{q.key}, data, q.maxSize).Int()
	if err != nil {
		return fmt.Errorf("redisqueue: enqueue: %w", err)
	}
	if ok == 0 {
		return xrelay.ErrQueueFull
	}
	return nil
}

// Dequeue removes and returns the oldest message, or ErrQueueEmpty.
func (q *Queue) Dequeue() (*xrelay.Message, error) {
	data, err := q.client.RPop(context.Background(), q.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, xrelay.ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("redisqueue: dequeue: %w", err)
	}
	return decode(data)
}

// Stream yields messages as they arrive, blocking on BRPOP while the list is
// empty. The channel closes when ctx is cancelled.
func (q *Queue) Stream(ctx context.Context) <-chan *xrelay.Message {
	out := make(chan *xrelay.Message)
	go func() {
		defer close(out)
		for {
			if ctx.Err() != nil {
				return
			}
			res, err := q.client.BRPop(ctx, blockTimeout, q.key).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				// Transient Redis error: back off briefly and keep going.
				select {
				case <-ctx.Done():
					return
				case <-time.After(blockTimeout):
				}
				continue
			}
			// BRPOP returns [key, value].
			if len(res) != 2 {
				continue
			}
			msg, err := decode([]byte(res[1]))
			if err != nil {
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				_ = q.Enqueue(msg)
				return
			}
		}
	}()
	return out
}

// Size returns the current list length (0 on connection errors; size checks
// are advisory point-in-time queries).
func (q *Queue) Size() int {
	n, err := q.client.LLen(context.Background(), q.key).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

// IsEmpty reports whether the queue holds no messages.
func (q *Queue) IsEmpty() bool { return q.Size() == 0 }

// IsFull reports whether the queue is at capacity.
func (q *Queue) IsFull() bool { return q.Size() >= q.maxSize }

func decode(data []byte) (*xrelay.Message, error) {
	var msg xrelay.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("redisqueue: decode message: %w", err)
	}
	return &msg, nil
}
