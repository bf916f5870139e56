package xrelay_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trickstertwo/xrelay"
	"github.com/trickstertwo/xrelay/queue/memqueue"
)

// fakeClock is a manually advanced Clock.
type fakeClock struct {
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// fakePort scripts send/fetch outcomes per call.
type fakePort struct {
	name    string
	initErr error

	sendErr    error   // returned by every Send unless a script is set
	sendScript []error // consumed one per Send, overrides sendErr
	sendCalls  int
	sent       []*xrelay.Message

	fetchErr   error
	fetchQueue []*xrelay.Message
	fetchCalls int
}

var _ xrelay.Port = (*fakePort)(nil)

func (p *fakePort) Name() string                     { return p.name }
func (p *fakePort) Initialize(context.Context) error { return p.initErr }
func (p *fakePort) Shutdown(context.Context) error   { return nil }

func (p *fakePort) Send(_ context.Context, msg *xrelay.Message) error {
	p.sendCalls++
	if len(p.sendScript) > 0 {
		err := p.sendScript[0]
		p.sendScript = p.sendScript[1:]
		if err == nil {
			p.sent = append(p.sent, msg)
		}
		return err
	}
	if p.sendErr != nil {
		return p.sendErr
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *fakePort) Fetch(context.Context) (*xrelay.Message, error) {
	p.fetchCalls++
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	if len(p.fetchQueue) == 0 {
		return nil, nil
	}
	msg := p.fetchQueue[0]
	p.fetchQueue = p.fetchQueue[1:]
	return msg, nil
}

func testBackoff() xrelay.BackoffConfig {
	return xrelay.BackoffConfig{
		MinDelay:   1 * time.Second,
		MaxDelay:   300 * time.Second,
		Strategy:   xrelay.StrategyExponential,
		Multiplier: 2.0,
		Increment:  5 * time.Second,
	}
}

func testMessage() *xrelay.Message {
	return xrelay.NewMessage("hello", "+15550001111",
		xrelay.Destination{Type: xrelay.MessageTypeTelegram, Address: "chat-42"})
}

func TestProcessQueue_EmptyQueueIsNoOp(t *testing.T) {
	port := &fakePort{name: "out"}
	incoming := memqueue.New(10)
	svc := xrelay.NewService("test", []xrelay.Port{port}, incoming, memqueue.New(10), testBackoff(),
		xrelay.WithClock(newFakeClock()))

	svc.ProcessQueue(context.Background())

	assert.Zero(t, port.sendCalls)
	assert.Zero(t, svc.Metrics().Delivered)
}

func TestProcessQueue_FirstAttemptSuccessLeavesBookkeepingClean(t *testing.T) {
	port := &fakePort{name: "out"}
	incoming := memqueue.New(10)
	msg := testMessage()
	require.NoError(t, incoming.Enqueue(msg))

	svc := xrelay.NewService("test", []xrelay.Port{port}, incoming, memqueue.New(10), testBackoff(),
		xrelay.WithClock(newFakeClock()))
	svc.ProcessQueue(context.Background())

	assert.Equal(t, 0, msg.RetryCount)
	assert.Nil(t, msg.LastRetryAt)
	assert.Nil(t, msg.NextRetryAt)
	assert.True(t, incoming.IsEmpty(), "delivered message must not be requeued")
	assert.Equal(t, uint64(1), svc.Metrics().Delivered)
}

func TestProcessQueue_TotalFailureSchedulesRetry(t *testing.T) {
	port := &fakePort{name: "out", sendErr: errors.New("modem offline")}
	incoming := memqueue.New(10)
	msg := testMessage()
	require.NoError(t, incoming.Enqueue(msg))

	clock := newFakeClock()
	svc := xrelay.NewService("test", []xrelay.Port{port}, incoming, memqueue.New(10), testBackoff(),
		xrelay.WithClock(clock))
	svc.ProcessQueue(context.Background())

	assert.Equal(t, 1, msg.RetryCount)
	require.NotNil(t, msg.LastRetryAt)
	assert.Equal(t, clock.Now(), *msg.LastRetryAt)
	require.NotNil(t, msg.NextRetryAt)
	assert.Equal(t, clock.Now().Add(1*time.Second), *msg.NextRetryAt, "first retry waits min_delay")
	assert.Equal(t, 1, incoming.Size(), "failed message is requeued")
	assert.Equal(t, uint64(1), svc.Metrics().Retried)
}

func TestProcessQueue_NotDueMessageIsDeferredWithoutSending(t *testing.T) {
	port := &fakePort{name: "out", sendErr: errors.New("down")}
	incoming := memqueue.New(10)
	msg := testMessage()
	require.NoError(t, incoming.Enqueue(msg))

	clock := newFakeClock()
	svc := xrelay.NewService("test", []xrelay.Port{port}, incoming, memqueue.New(10), testBackoff(),
		xrelay.WithClock(clock))

	// First cycle fails and schedules the retry.
	svc.ProcessQueue(context.Background())
	require.Equal(t, 1, msg.RetryCount)
	require.Equal(t, 1, port.sendCalls)
	due := *msg.NextRetryAt

	// Hammering the queue before the due time must not re-attempt delivery.
	for i := 0; i < 5; i++ {
		svc.ProcessQueue(context.Background())
	}
	assert.Equal(t, 1, port.sendCalls, "send must not run before next_retry_at")
	assert.Equal(t, 1, msg.RetryCount)
	assert.Equal(t, due, *msg.NextRetryAt)
	assert.Equal(t, 1, incoming.Size())

	// Once due, delivery is attempted again.
	clock.Advance(2 * time.Second)
	svc.ProcessQueue(context.Background())
	assert.Equal(t, 2, port.sendCalls)
	assert.Equal(t, 2, msg.RetryCount)
}

func TestProcessQueue_DiscardsAfterMaxRetries(t *testing.T) {
	port := &fakePort{name: "out", sendErr: errors.New("permanently down")}
	incoming := memqueue.New(10)
	msg := testMessage()
	require.NoError(t, incoming.Enqueue(msg))

	clock := newFakeClock()
	var discarded []xrelay.Event
	svc := xrelay.NewService("test", []xrelay.Port{port}, incoming, memqueue.New(10), testBackoff(),
		xrelay.WithClock(clock),
		xrelay.WithObserver(xrelay.ObserverFunc(func(e xrelay.Event) {
			if e.Type == xrelay.Discarded {
				discarded = append(discarded, e)
			}
		})))

	// Five failing attempts; the clock jumps past every backoff window.
	for i := 0; i < 5; i++ {
		svc.ProcessQueue(context.Background())
		clock.Advance(10 * time.Minute)
	}

	assert.Equal(t, 5, port.sendCalls)
	assert.Equal(t, 5, msg.RetryCount)
	assert.Nil(t, msg.NextRetryAt, "discarded message carries no next retry")
	assert.True(t, incoming.IsEmpty(), "discarded message must leave the queue")
	assert.Equal(t, uint64(1), svc.Metrics().Discarded)
	require.Len(t, discarded, 1)
	assert.Equal(t, 5, discarded[0].RetryCount)

	// The queue keeps working afterwards.
	require.NoError(t, incoming.Enqueue(testMessage()))
	assert.Equal(t, 1, incoming.Size())
}

func TestProcessQueue_FirstSuccessShortCircuitsRemainingPorts(t *testing.T) {
	a := &fakePort{name: "a", sendErr: errors.New("a down")}
	b := &fakePort{name: "b"}
	c := &fakePort{name: "c"}
	incoming := memqueue.New(10)
	require.NoError(t, incoming.Enqueue(testMessage()))

	svc := xrelay.NewService("test", []xrelay.Port{a, b, c}, incoming, memqueue.New(10), testBackoff(),
		xrelay.WithClock(newFakeClock()))
	svc.ProcessQueue(context.Background())

	assert.Equal(t, 1, a.sendCalls)
	assert.Equal(t, 1, b.sendCalls)
	assert.Zero(t, c.sendCalls, "ports after the first success are not tried")
	assert.Equal(t, uint64(1), svc.Metrics().Delivered)
}

func TestProcessQueue_MessageLevelBackoffStrategy(t *testing.T) {
	port := &fakePort{name: "out", sendErr: errors.New("down")}
	incoming := memqueue.New(10)

	linear := testMessage()
	linear.BackoffStrategy = xrelay.StrategyLinear
	linear.RetryCount = 1 // second failure -> min + increment
	past := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	linear.LastRetryAt = &past
	linear.NextRetryAt = &past
	require.NoError(t, incoming.Enqueue(linear))

	clock := newFakeClock()
	svc := xrelay.NewService("test", []xrelay.Port{port}, incoming, memqueue.New(10), testBackoff(),
		xrelay.WithClock(clock))
	svc.ProcessQueue(context.Background())

	require.NotNil(t, linear.NextRetryAt)
	assert.Equal(t, clock.Now().Add(6*time.Second), *linear.NextRetryAt,
		"linear: min_delay + increment for retry_count=2")
}

func TestProcessQueue_UnknownStrategyFallsBackToExponential(t *testing.T) {
	port := &fakePort{name: "out", sendErr: errors.New("down")}
	incoming := memqueue.New(10)
	msg := testMessage()
	msg.BackoffStrategy = "fibonacci"
	require.NoError(t, incoming.Enqueue(msg))

	clock := newFakeClock()
	svc := xrelay.NewService("test", []xrelay.Port{port}, incoming, memqueue.New(10), testBackoff(),
		xrelay.WithClock(clock))
	svc.ProcessQueue(context.Background())

	require.NotNil(t, msg.NextRetryAt)
	assert.Equal(t, clock.Now().Add(1*time.Second), *msg.NextRetryAt)
}

func TestCheckPorts_IsolatesFetchFailures(t *testing.T) {
	failing := &fakePort{name: "a", fetchErr: errors.New("modem wedged")}
	healthy := &fakePort{name: "b", fetchQueue: []*xrelay.Message{testMessage()}}
	outgoing := memqueue.New(10)

	svc := xrelay.NewService("test", []xrelay.Port{failing, healthy}, memqueue.New(10), outgoing, testBackoff(),
		xrelay.WithClock(newFakeClock()))
	svc.CheckPorts(context.Background(), "integrations")

	assert.Equal(t, 1, failing.fetchCalls, "failing port is still polled")
	assert.Equal(t, 1, healthy.fetchCalls, "failure must not block later ports")
	assert.Equal(t, 1, outgoing.Size(), "exactly the healthy port's message is routed")
	assert.Equal(t, uint64(1), svc.Metrics().FetchFailures)
	assert.Equal(t, uint64(1), svc.Metrics().Routed)
}

func TestCheckPorts_AbsorbsFullOutgoingQueue(t *testing.T) {
	port := &fakePort{name: "a", fetchQueue: []*xrelay.Message{testMessage(), testMessage()}}
	outgoing := memqueue.New(1)

	svc := xrelay.NewService("test", []xrelay.Port{port}, memqueue.New(10), outgoing, testBackoff(),
		xrelay.WithClock(newFakeClock()))

	svc.CheckPorts(context.Background(), "integrations")
	svc.CheckPorts(context.Background(), "integrations")

	// Second message hits the full queue; no panic, no propagation.
	assert.Equal(t, 1, outgoing.Size())
	assert.Equal(t, uint64(1), svc.Metrics().Routed)
}

func TestProcessQueue_ObserverSeesLifecycle(t *testing.T) {
	port := &fakePort{name: "out", sendScript: []error{errors.New("down"), nil}}
	incoming := memqueue.New(10)
	require.NoError(t, incoming.Enqueue(testMessage()))

	clock := newFakeClock()
	var events []xrelay.EventType
	svc := xrelay.NewService("test", []xrelay.Port{port}, incoming, memqueue.New(10), testBackoff(),
		xrelay.WithClock(clock),
		xrelay.WithObserver(xrelay.ObserverFunc(func(e xrelay.Event) {
			events = append(events, e.Type)
		})))

	svc.ProcessQueue(context.Background())
	clock.Advance(5 * time.Second)
	svc.ProcessQueue(context.Background())

	assert.Equal(t, []xrelay.EventType{
		xrelay.SendFailed,
		xrelay.RetryScheduled,
		xrelay.Delivered,
	}, events)
}
