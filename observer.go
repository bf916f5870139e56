package xrelay

import (
	"time"

	"github.com/trickstertwo/xlog"
)

// EventType enumerates delivery lifecycle events for the Observer pattern.
type EventType string

const (
	// Routed: a fetched message was pushed onto the outgoing queue.
	Routed EventType = "routed"
	// Delivered: a send succeeded and the message left the pipeline.
	Delivered EventType = "delivered"
	// Deferred: a dequeued message was not yet due and went back.
	Deferred EventType = "deferred"
	// RetryScheduled: every port failed; the message was re-enqueued with
	// a computed next attempt time.
	RetryScheduled EventType = "retry_scheduled"
	// Discarded: the message exhausted its retries and was dropped.
	Discarded EventType = "discarded"
	// FetchFailed / SendFailed: a single port call failed (absorbed).
	FetchFailed EventType = "fetch_failed"
	SendFailed  EventType = "send_failed"
	// QueueSaturated: an enqueue hit capacity (absorbed, operator signal).
	QueueSaturated EventType = "queue_saturated"
)

// Event carries telemetry for observers.
type Event struct {
	Type        EventType
	Service     string
	Port        string
	Sender      string
	RetryCount  int
	NextRetryAt time.Time
	Err         error
}

// Observer receives delivery lifecycle events. The core dispatches
// synchronously from its single-threaded cycle, so implementations must be
// fast and non-blocking.
type Observer interface {
	OnEvent(e Event)
}

// ObserverFunc is an Adapter that lets a plain function satisfy Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// LoggingObserver emits lifecycle events via xlog.
type LoggingObserver struct {
	Logger *xlog.Logger
}

func (o LoggingObserver) OnEvent(e Event) {
	if o.Logger == nil {
		return
	}
	ev := o.Logger.With(
		xlog.Str("type", string(e.Type)),
		xlog.Str("service", e.Service),
		xlog.Str("port", e.Port),
		xlog.Str("sender", e.Sender),
	)
	switch e.Type {
	case Discarded, QueueSaturated:
		ev.Error().Err(e.Err).Msg("xrelay event")
	case FetchFailed, SendFailed, RetryScheduled:
		ev.Warn().Err(e.Err).Msg("xrelay event")
	default:
		ev.Debug().Msg("xrelay event")
	}
}
