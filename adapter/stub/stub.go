// Package stub provides a synthetic SMS port for development and testing:
// Fetch generates random inbound messages with a configurable probability
// and Send can be made to fail with a configurable probability to exercise
// the retry path.
package stub

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/xrelay"
)

const AdapterName = "stub"

// ErrSimulatedFailure is returned by Send when the failure dice hit.
var ErrSimulatedFailure = errors.New("stub: simulated send failure")

// Config controls stub behavior.
type Config struct {
	// Name identifies this stub instance in logs.
	Name string
	// MessageProbability is the chance per Fetch of producing a message.
	MessageProbability float64
	// SendFailureProbability is the chance per Send of failing.
	SendFailureProbability float64
	// Seed makes the stub deterministic when non-zero.
	Seed int64
}

// ConfigFromMap converts a generic config blob into Config with defaults.
func ConfigFromMap(cfg map[string]any) Config {
	getString := func(k, d string) string {
		if v, ok := cfg[k].(string); ok && v != "" {
			return v
		}
		return d
	}
	getFloat := func(k string, d float64) float64 {
		switch v := cfg[k].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		}
		return d
	}
	getInt64 := func(k string, d int64) int64 {
		switch v := cfg[k].(type) {
		case int64:
			return v
		case int:
			return int64(v)
		case float64:
			return int64(v)
		}
		return d
	}

	return Config{
		Name:                   getString("name", AdapterName),
		MessageProbability:     getFloat("message_probability", 0.1),
		SendFailureProbability: getFloat("send_failure_probability", 0),
		Seed:                   getInt64("seed", 0),
	}
}

// Factory is the xrelay.PortFactory for the stub adapter.
func Factory(cfg map[string]any) (xrelay.Port, error) {
	return New(ConfigFromMap(cfg)), nil
}

// Port implements xrelay.Port with synthetic traffic.
type Port struct {
	cfg     Config
	rng     *rand.Rand
	counter int
	logger  *xlog.Logger
}

var _ xrelay.Port = (*Port)(nil)

// New creates a stub port. A zero Seed yields non-deterministic traffic.
func New(cfg Config) *Port {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}
	return &Port{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(seed)),
		logger: xlog.Default().With(xlog.Str("port", cfg.Name)),
	}
}

func (p *Port) Name() string { return p.cfg.Name }

func (p *Port) Initialize(_ context.Context) error {
	p.logger.Info().
		Str("adapter", AdapterName).
		Msg("stub initialized")
	return nil
}

func (p *Port) Shutdown(_ context.Context) error {
	p.logger.Info().Msg("stub shut down")
	return nil
}

// Send pretends to deliver the message, failing per configuration.
func (p *Port) Send(_ context.Context, msg *xrelay.Message) error {
	if p.rng.Float64() < p.cfg.SendFailureProbability {
		return ErrSimulatedFailure
	}
	p.logger.Debug().
		Str("sender", msg.Sender).
		Msg("stub send")
	return nil
}

// Fetch produces a synthetic inbound SMS with the configured probability,
// otherwise (nil, nil).
func (p *Port) Fetch(_ context.Context) (*xrelay.Message, error) {
	if p.rng.Float64() >= p.cfg.MessageProbability {
		return nil, nil
	}
	p.counter++
	msg := xrelay.NewMessage(
		fmt.Sprintf("Test message %d from %s", p.counter, p.cfg.Name),
		fmt.Sprintf("+1555%07d", p.counter),
		xrelay.Destination{Type: xrelay.MessageTypeTelegram, Address: "stub-chat"},
	)
	return msg, nil
}
