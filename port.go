package xrelay

import (
	"context"
	"time"

	"github.com/trickstertwo/xclock"
)

// Port is a transport endpoint capable of sending and fetching individual
// messages. Implementations own no messages beyond the call duration and are
// responsible for their own I/O timeouts; the core never times them out.
type Port interface {
	// Name identifies the port in logs and diagnostics.
	Name() string

	// Initialize prepares the port for use (connects, verifies credentials).
	Initialize(ctx context.Context) error

	// Shutdown releases resources. Safe to call once after Initialize.
	Shutdown(ctx context.Context) error

	// Send delivers one message through this port.
	Send(ctx context.Context, msg *Message) error

	// Fetch returns one inbound message, or (nil, nil) when none is waiting.
	Fetch(ctx context.Context) (*Message, error)
}

// PortFactory constructs a port from a config blob. Adapter packages expose
// one per adapter; the Registry maps (kind, name) to it.
type PortFactory func(cfg map[string]any) (Port, error)

// Clock abstracts time for the delivery service so eligibility and backoff
// are testable. xclock clocks satisfy it.
type Clock interface {
	Now() time.Time
}

// defaultClock returns the process-wide xclock instance.
func defaultClock() Clock { return xclock.Default() }
