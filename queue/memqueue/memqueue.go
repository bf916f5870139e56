// Package memqueue provides the in-memory bounded FIFO queue. It is the
// default queue for a single-process relay: capacity is fixed at
// construction, enqueue/dequeue never block, and a channel-backed Stream
// serves dedicated consumer tasks.
package memqueue

import (
	"context"

	"github.com/trickstertwo/xrelay"
)

// DefaultMaxSize is used when no capacity is configured.
const DefaultMaxSize = 1000

// Queue is a bounded FIFO over a buffered channel. The channel provides the
// atomicity for concurrent enqueue/dequeue; the queue itself takes no locks.
type Queue struct {
	ch chan *xrelay.Message
}

var _ xrelay.Queue = (*Queue)(nil)

// New creates a queue with the given capacity (DefaultMaxSize if <= 0).
func New(maxSize int) *Queue {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Queue{ch: make(chan *xrelay.Message, maxSize)}
}

// Enqueue appends msg, or returns ErrQueueFull at capacity.
func (q *Queue) Enqueue(msg *xrelay.Message) error {
	select {
	case q.ch <- msg:
		return nil
	default:
		return xrelay.ErrQueueFull
	}
}

// Dequeue removes and returns the oldest message, or ErrQueueEmpty.
func (q *Queue) Dequeue() (*xrelay.Message, error) {
	select {
	case msg := <-q.ch:
		return msg, nil
	default:
		return nil, xrelay.ErrQueueEmpty
	}
}

// Stream yields messages as they arrive, blocking while the queue is empty.
// The returned channel closes when ctx is cancelled. A message taken from
// the buffer but not yet handed to the consumer at cancellation time is
// re-enqueued best-effort.
func (q *Queue) Stream(ctx context.Context) <-chan *xrelay.Message {
	out := make(chan *xrelay.Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-q.ch:
				select {
				case out <- msg:
				case <-ctx.Done():
					_ = q.Enqueue(msg)
					return
				}
			}
		}
	}()
	return out
}

// Size returns the current number of buffered messages.
func (q *Queue) Size() int { return len(q.ch) }

// IsEmpty reports whether the queue holds no messages.
func (q *Queue) IsEmpty() bool { return len(q.ch) == 0 }

// IsFull reports whether the queue is at capacity.
func (q *Queue) IsFull() bool { return len(q.ch) == cap(q.ch) }
