package xrelay

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/trickstertwo/xlog"
)

// maxRetries bounds delivery attempts per message. A message that fails this
// many consecutive attempts is discarded; there is no dead-letter store.
const maxRetries = 5

// Service is the retry/backoff delivery engine driving one directional flow
// of messages through a set of ports. It is driven externally: the
// orchestrator calls CheckPorts and ProcessQueue once per poll cycle, and
// both absorb every port-level failure rather than propagating it.
//
// The service is single-threaded by contract: each queue is owned by exactly
// one producer/consumer pair and messages transfer ownership through it, so
// the engine itself takes no locks.
type Service struct {
	name     string
	ports    []Port
	incoming Queue
	outgoing Queue
	backoff  BackoffConfig

	logger    *xlog.Logger
	clock     Clock
	observers []Observer

	metrics serviceMetrics
}

// serviceMetrics uses lock-free atomics; observers may read snapshots from
// other goroutines while the cycle runs.
type serviceMetrics struct {
	routed        atomic.Uint64
	delivered     atomic.Uint64
	deferred      atomic.Uint64
	retried       atomic.Uint64
	discarded     atomic.Uint64
	fetchFailures atomic.Uint64
	sendFailures  atomic.Uint64
}

// ServiceMetrics is a point-in-time counter snapshot.
type ServiceMetrics struct {
	Routed        uint64
	Delivered     uint64
	Deferred      uint64
	Retried       uint64
	Discarded     uint64
	FetchFailures uint64
	SendFailures  uint64
}

// Option configures a Service at construction.
type Option func(*Service)

// WithLogger injects a custom xlog logger.
func WithLogger(l *xlog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock injects a custom clock (e.g. a fake for tests).
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithObserver attaches observers for lifecycle events.
func WithObserver(obs ...Observer) Option {
	return func(s *Service) {
		for _, o := range obs {
			if o != nil {
				s.observers = append(s.observers, o)
			}
		}
	}
}

// NewService builds a delivery service. Ports are tried in the given order
// for both fetch and send; incoming is the queue this service drains for
// delivery, outgoing receives messages harvested from the ports.
func NewService(name string, ports []Port, incoming, outgoing Queue, backoff BackoffConfig, opts ...Option) *Service {
	s := &Service{
		name:     name,
		ports:    ports,
		incoming: incoming,
		outgoing: outgoing,
		backoff:  backoff,
	}
	for _, o := range opts {
		if o != nil {
			o(s)
		}
	}
	if s.logger == nil {
		s.logger = xlog.Default()
	}
	if s.clock == nil {
		s.clock = defaultClock()
	}
	s.logger = s.logger.With(xlog.Str("service", name))
	return s
}

// Name returns the service label.
func (s *Service) Name() string { return s.name }

// Metrics returns a snapshot of the service counters.
func (s *Service) Metrics() ServiceMetrics {
	return ServiceMetrics{
		Routed:        s.metrics.routed.Load(),
		Delivered:     s.metrics.delivered.Load(),
		Deferred:      s.metrics.deferred.Load(),
		Retried:       s.metrics.retried.Load(),
		Discarded:     s.metrics.discarded.Load(),
		FetchFailures: s.metrics.fetchFailures.Load(),
		SendFailures:  s.metrics.sendFailures.Load(),
	}
}

// CheckPorts polls every port once, in registration order, and routes each
// fetched message onto the outgoing queue. A fetch failure or an absent
// message on one port never blocks the remaining ports; failures are logged
// and absorbed. routeTo is a label naming the logical destination group.
func (s *Service) CheckPorts(ctx context.Context, routeTo string) {
	for _, port := range s.ports {
		msg, err := port.Fetch(ctx)
		if err != nil {
			s.metrics.fetchFailures.Add(1)
			s.notify(Event{Type: FetchFailed, Service: s.name, Port: port.Name(), Err: err})
			s.logger.Warn().Err(err).
				Str("port", port.Name()).
				Msg("fetch failed")
			continue
		}
		if msg == nil {
			continue
		}

		s.logger.Debug().
			Str("port", port.Name()).
			Str("sender", msg.Sender).
			Msg("received message")

		if err := s.outgoing.Enqueue(msg); err != nil {
			// A full queue is a backpressure condition for the operator,
			// not something this loop can recover from. Absorb and log.
			s.notify(Event{Type: QueueSaturated, Service: s.name, Port: port.Name(), Sender: msg.Sender, Err: err})
			s.logger.Error().Err(err).
				Str("port", port.Name()).
				Str("sender", msg.Sender).
				Msg("failed to route message")
			continue
		}

		s.metrics.routed.Add(1)
		s.notify(Event{Type: Routed, Service: s.name, Port: port.Name(), Sender: msg.Sender})
		s.logger.Info().
			Str("sender", msg.Sender).
			Str("to", routeTo).
			Msg("routed message")
	}
}

// ProcessQueue performs one single-message delivery transition:
//
//	dequeue -> (not due? requeue) -> try ports in order ->
//	success: done | total failure: bump retry state, discard at the
//	retry cap, otherwise compute the next attempt time and requeue.
//
// An empty incoming queue is a no-op. Nothing propagates to the caller.
func (s *Service) ProcessQueue(ctx context.Context) {
	msg, err := s.incoming.Dequeue()
	if err != nil {
		if !errors.Is(err, ErrQueueEmpty) {
			s.logger.Error().Err(err).Msg("dequeue failed")
		}
		return
	}

	s.logger.Info().
		Str("sender", msg.Sender).
		Str("to", strings.Join(msg.Addresses(), ",")).
		Int("retry", msg.RetryCount).
		Int("max_retries", maxRetries).
		Msg("processing message")

	// Not yet due: put it back so other messages get a chance instead of
	// busy-retrying the same one.
	if msg.RetryCount > 0 && msg.NextRetryAt != nil && s.clock.Now().Before(*msg.NextRetryAt) {
		s.metrics.deferred.Add(1)
		s.notify(Event{Type: Deferred, Service: s.name, Sender: msg.Sender, RetryCount: msg.RetryCount, NextRetryAt: *msg.NextRetryAt})
		if err := s.incoming.Enqueue(msg); err != nil {
			s.notify(Event{Type: QueueSaturated, Service: s.name, Sender: msg.Sender, Err: err})
			s.logger.Error().Err(err).
				Str("sender", msg.Sender).
				Msg("failed to defer message")
		}
		return
	}

	if s.trySend(ctx, msg) {
		msg.RetryCount = 0
		msg.LastRetryAt = nil
		msg.NextRetryAt = nil
		s.metrics.delivered.Add(1)
		s.notify(Event{Type: Delivered, Service: s.name, Sender: msg.Sender})
		return
	}

	// Every port failed.
	now := s.clock.Now()
	msg.RetryCount++
	msg.LastRetryAt = &now

	if msg.RetryCount >= maxRetries {
		msg.NextRetryAt = nil
		s.metrics.discarded.Add(1)
		s.notify(Event{Type: Discarded, Service: s.name, Sender: msg.Sender, RetryCount: msg.RetryCount})
		s.logger.Error().
			Str("sender", msg.Sender).
			Str("to", strings.Join(msg.Addresses(), ",")).
			Int("retries", msg.RetryCount).
			Msg("max retries reached, discarding message")
		return
	}

	next := s.backoff.StrategyFor(msg.BackoffStrategy).NextRetry(msg.RetryCount, now)
	msg.NextRetryAt = &next

	s.metrics.retried.Add(1)
	s.notify(Event{Type: RetryScheduled, Service: s.name, Sender: msg.Sender, RetryCount: msg.RetryCount, NextRetryAt: next})
	s.logger.Warn().
		Str("sender", msg.Sender).
		Int("retry", msg.RetryCount).
		Int("max_retries", maxRetries).
		Dur("next_attempt_in", next.Sub(now)).
		Msg("all ports failed, scheduling retry")

	if err := s.incoming.Enqueue(msg); err != nil {
		s.notify(Event{Type: QueueSaturated, Service: s.name, Sender: msg.Sender, Err: err})
		s.logger.Error().Err(err).
			Str("sender", msg.Sender).
			Msg("failed to requeue message")
	}
}

// trySend attempts delivery through the ports in order, stopping at the
// first success. Per-port errors are logged and absorbed.
func (s *Service) trySend(ctx context.Context, msg *Message) bool {
	for _, port := range s.ports {
		if err := port.Send(ctx, msg); err != nil {
			s.metrics.sendFailures.Add(1)
			s.notify(Event{Type: SendFailed, Service: s.name, Port: port.Name(), Sender: msg.Sender, Err: err})
			s.logger.Warn().Err(err).
				Str("port", port.Name()).
				Str("sender", msg.Sender).
				Msg("send failed")
			continue
		}
		s.logger.Info().
			Str("port", port.Name()).
			Str("sender", msg.Sender).
			Str("to", strings.Join(msg.Addresses(), ",")).
			Msg("sent message")
		return true
	}
	return false
}

func (s *Service) notify(e Event) {
	for _, o := range s.observers {
		o.OnEvent(e)
	}
}
