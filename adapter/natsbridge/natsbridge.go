// Package natsbridge provides an integration port that bridges the relay to
// NATS subjects: Send publishes messages as JSON to an outbound subject and
// Fetch drains a subscription buffer without blocking, so other systems can
// inject and consume relay traffic over the broker.
package natsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/trickstertwo/xrelay"
)

const AdapterName = "nats"

const defaultBuffer = 256

// Config for a NATS bridge port.
type Config struct {
	// Name identifies this integration instance in logs.
	Name string
	// URL is the NATS server URL.
	URL string
	// SubjectIn receives inbound relay messages (JSON-encoded Message).
	SubjectIn string
	// SubjectOut is where delivered messages are published.
	SubjectOut string
	// Buffer sizes the inbound subscription channel.
	Buffer int
}

// ConfigFromMap converts a generic config blob into Config with defaults.
func ConfigFromMap(cfg map[string]any) Config {
	getString := func(k, d string) string {
		if v, ok := cfg[k].(string); ok && v != "" {
			return v
		}
		return d
	}
	getInt := func(k string, d int) int {
		switch v := cfg[k].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
		return d
	}

	return Config{
		Name:       getString("name", AdapterName),
		URL:        getString("url", nats.DefaultURL),
		SubjectIn:  getString("subject_in", "xrelay.in"),
		SubjectOut: getString("subject_out", "xrelay.out"),
		Buffer:     getInt("buffer", defaultBuffer),
	}
}

// Factory is the xrelay.PortFactory for the NATS adapter.
func Factory(cfg map[string]any) (xrelay.Port, error) {
	return New(ConfigFromMap(cfg)), nil
}

// Port implements xrelay.Port over a NATS connection.
type Port struct {
	cfg  Config
	conn *nats.Conn
	sub  *nats.Subscription
	ch   chan *nats.Msg
}

var _ xrelay.Port = (*Port)(nil)

// New creates a NATS port; Initialize establishes the connection.
func New(cfg Config) *Port {
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaultBuffer
	}
	return &Port{cfg: cfg}
}

func (p *Port) Name() string { return p.cfg.Name }

// Initialize connects and subscribes to the inbound subject.
func (p *Port) Initialize(_ context.Context) error {
	conn, err := nats.Connect(p.cfg.URL)
	if err != nil {
		return fmt.Errorf("natsbridge: connect %s: %w", p.cfg.URL, err)
	}

	ch := make(chan *nats.Msg, p.cfg.Buffer)
	sub, err := conn.ChanSubscribe(p.cfg.SubjectIn, ch)
	if err != nil {
		conn.Close()
		return fmt.Errorf("natsbridge: subscribe %s: %w", p.cfg.SubjectIn, err)
	}

	p.conn = conn
	p.sub = sub
	p.ch = ch
	return nil
}

// Shutdown unsubscribes and closes the connection.
func (p *Port) Shutdown(_ context.Context) error {
	var errs []error
	if p.sub != nil {
		if err := p.sub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
		p.sub = nil
	}
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
	return errors.Join(errs...)
}

// Send publishes the message as JSON to the outbound subject.
func (p *Port) Send(_ context.Context, msg *xrelay.Message) error {
	if p.conn == nil {
		return errors.New("natsbridge: not initialized")
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("natsbridge: encode message: %w", err)
	}
	if err := p.conn.Publish(p.cfg.SubjectOut, data); err != nil {
		return fmt.Errorf("natsbridge: publish %s: %w", p.cfg.SubjectOut, err)
	}
	return nil
}

// Fetch drains one buffered inbound message, or returns (nil, nil).
func (p *Port) Fetch(_ context.Context) (*xrelay.Message, error) {
	if p.ch == nil {
		return nil, errors.New("natsbridge: not initialized")
	}
	select {
	case nm := <-p.ch:
		var msg xrelay.Message
		if err := json.Unmarshal(nm.Data, &msg); err != nil {
			return nil, fmt.Errorf("natsbridge: decode message: %w", err)
		}
		return &msg, nil
	default:
		return nil, nil
	}
}
