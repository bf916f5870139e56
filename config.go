package xrelay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// AdapterConfigs maps an adapter name (stub, telegram, nats, ...) to the
// config blobs of its instances. Blobs are generic maps; each adapter package
// interprets its own keys, the core only honors "enabled" and "name".
type AdapterConfigs map[string][]map[string]any

// QueueConfig selects and sizes a queue implementation.
type QueueConfig struct {
	// Type is "memory" or "redis".
	Type string `json:"type"`
	// MaxSize is the queue capacity (default 1000).
	MaxSize int `json:"maxsize"`

	// Redis settings, ignored for memory queues.
	Addr     string `json:"addr,omitempty"`
	Key      string `json:"key,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
}

// QueuesConfig holds the two directional queues.
type QueuesConfig struct {
	SMSQueue         QueueConfig `json:"sms_queue"`
	IntegrationQueue QueueConfig `json:"integration_queue"`
}

// RuntimeConfig tunes the gateway loop.
type RuntimeConfig struct {
	// PollDelay is the pause between poll cycles. JSON carries it as
	// seconds (float), 0.1..60.
	PollDelay time.Duration
	// LogLevel is debug|info|warn|error.
	LogLevel string
	// Backoff is the retry timing configuration shared by both services.
	Backoff BackoffConfig
}

type jsonRuntimeConfig struct {
	PollDelay *float64       `json:"poll_delay,omitempty"`
	LogLevel  *string        `json:"log_level,omitempty"`
	Backoff   *BackoffConfig `json:"backoff,omitempty"`
}

func (c *RuntimeConfig) UnmarshalJSON(data []byte) error {
	var raw jsonRuntimeConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = DefaultRuntimeConfig()
	if raw.PollDelay != nil {
		c.PollDelay = secondsToDuration(*raw.PollDelay)
	}
	if raw.LogLevel != nil {
		c.LogLevel = *raw.LogLevel
	}
	if raw.Backoff != nil {
		c.Backoff = *raw.Backoff
	}
	return nil
}

// DefaultRuntimeConfig returns the runtime defaults: 1s poll, info logging,
// default backoff.
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		PollDelay: 1 * time.Second,
		LogLevel:  "info",
		Backoff:   DefaultBackoffConfig(),
	}
}

// GatewayConfig is the top-level configuration for one relay instance.
type GatewayConfig struct {
	Name        string         `json:"name"`
	SMS         AdapterConfigs `json:"sms"`
	Integration AdapterConfigs `json:"integration"`
	Queues      QueuesConfig   `json:"queues"`
	Runtime     RuntimeConfig  `json:"runtime"`
}

// Validate checks the configuration for a runnable gateway.
func (c *GatewayConfig) Validate() error {
	if c.Name == "" {
		c.Name = "xrelay"
	}
	if c.Runtime.PollDelay < 100*time.Millisecond || c.Runtime.PollDelay > 60*time.Second {
		return fmt.Errorf("runtime: poll_delay must be within 0.1s..60s, got %v", c.Runtime.PollDelay)
	}
	if err := c.Runtime.Backoff.Validate(); err != nil {
		return err
	}
	for _, qc := range []*QueueConfig{&c.Queues.SMSQueue, &c.Queues.IntegrationQueue} {
		if qc.Type == "" {
			qc.Type = "memory"
		}
		if qc.MaxSize <= 0 {
			qc.MaxSize = 1000
		}
	}
	return nil
}

// LoadConfig reads and validates a gateway configuration from a JSON file.
// Unknown fields are rejected to surface typos early.
func LoadConfig(path string) (*GatewayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &GatewayConfig{Runtime: DefaultRuntimeConfig()}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

// DefaultConfigPath is where the daemon looks when no -config flag is given.
func DefaultConfigPath() string { return "./config.json" }
