package xrelay

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueFull is returned by Enqueue against a queue at capacity.
	ErrQueueFull = errors.New("xrelay: queue full")

	// ErrQueueEmpty is returned by Dequeue against an empty queue. The
	// delivery Service treats it as "nothing to do", never as a failure.
	ErrQueueEmpty = errors.New("xrelay: queue empty")

	// ErrGatewayClosed is returned when operating on a shut-down gateway.
	ErrGatewayClosed = errors.New("xrelay: gateway closed")
)

// ErrUnknownAdapter indicates a port factory lookup miss in the Registry.
type ErrUnknownAdapter struct {
	Kind AdapterKind
	Name string
}

func (e ErrUnknownAdapter) Error() string {
	return fmt.Sprintf("unknown %s adapter: %s", e.Kind, e.Name)
}

// ErrUnknownQueueType indicates an unsupported queue type in configuration.
type ErrUnknownQueueType struct {
	Type string
}

func (e ErrUnknownQueueType) Error() string {
	return fmt.Sprintf("unknown queue type: %s", e.Type)
}
