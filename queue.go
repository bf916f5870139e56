package xrelay

import (
	"context"
)

// Queue is a bounded FIFO buffer of pending messages. Insertion order is
// delivery order. Enqueue and Dequeue never block; fullness and emptiness
// are reported immediately via ErrQueueFull / ErrQueueEmpty.
//
// Items are consumed exactly once across all consumers, so a queue should
// have one logical consumer: either the delivery Service draining it via
// Dequeue, or a dedicated task reading its Stream.
type Queue interface {
	// Enqueue appends a message. Returns ErrQueueFull at capacity.
	Enqueue(msg *Message) error

	// Dequeue removes and returns the oldest message. Returns
	// ErrQueueEmpty when there is nothing to do.
	Dequeue() (*Message, error)

	// Stream yields messages as they arrive, blocking while the queue is
	// empty. The channel closes when ctx is cancelled.
	Stream(ctx context.Context) <-chan *Message

	// Size, IsEmpty and IsFull are non-blocking point-in-time queries.
	// Under concurrent mutation only the single read is atomic.
	Size() int
	IsEmpty() bool
	IsFull() bool
}
