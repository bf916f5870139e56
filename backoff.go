package xrelay

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Strategy names accepted in configuration and on messages.
const (
	StrategyExponential = "exponential"
	StrategyLinear      = "linear"
)

// Strategy computes the next permitted delivery attempt from the retry count
// and the instant of the most recent failed attempt. Implementations are
// pure: no clocks, no errors, total over all retryCount >= 1.
type Strategy interface {
	NextRetry(retryCount int, lastRetry time.Time) time.Time
}

// ExponentialBackoff grows the delay by Multiplier per retry, bounded to
// [MinDelay, MaxDelay].
//
// retryCount=1 -> MinDelay, retryCount=2 -> MinDelay*Multiplier,
// retryCount=3 -> MinDelay*Multiplier^2, ...
type ExponentialBackoff struct {
	MinDelay   time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

func (b ExponentialBackoff) NextRetry(retryCount int, lastRetry time.Time) time.Time {
	exp := retryCount - 1
	if exp < 0 {
		exp = 0
	}
	delay := time.Duration(float64(b.MinDelay) * math.Pow(b.Multiplier, float64(exp)))
	return lastRetry.Add(clampDelay(delay, b.MinDelay, b.MaxDelay))
}

// LinearBackoff grows the delay by a fixed Increment per retry, bounded to
// [MinDelay, MaxDelay].
//
// retryCount=1 -> MinDelay, retryCount=2 -> MinDelay+Increment,
// retryCount=3 -> MinDelay+2*Increment, ...
type LinearBackoff struct {
	MinDelay  time.Duration
	MaxDelay  time.Duration
	Increment time.Duration
}

func (b LinearBackoff) NextRetry(retryCount int, lastRetry time.Time) time.Time {
	steps := retryCount - 1
	if steps < 0 {
		steps = 0
	}
	delay := b.MinDelay + time.Duration(steps)*b.Increment
	return lastRetry.Add(clampDelay(delay, b.MinDelay, b.MaxDelay))
}

// clampDelay bounds delay to [min, max]. Overflowed exponential products come
// out negative; they clamp to max.
func clampDelay(delay, min, max time.Duration) time.Duration {
	if delay < min {
		return min
	}
	if delay > max || delay < 0 {
		return max
	}
	return delay
}

// BackoffConfig is the externally loaded retry timing configuration. It is
// immutable after construction and shared read-only by delivery services.
//
// The JSON form carries delays as seconds (floats), matching the gateway
// config file contract.
type BackoffConfig struct {
	MinDelay   time.Duration
	MaxDelay   time.Duration
	Strategy   string
	Multiplier float64
	Increment  time.Duration
}

// DefaultBackoffConfig returns the production defaults: exponential,
// 1s..300s, doubling, 5s linear increment.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		MinDelay:   1 * time.Second,
		MaxDelay:   300 * time.Second,
		Strategy:   StrategyExponential,
		Multiplier: 2.0,
		Increment:  5 * time.Second,
	}
}

// Validate checks the configuration bounds.
func (c BackoffConfig) Validate() error {
	if c.MinDelay < 100*time.Millisecond {
		return fmt.Errorf("backoff: min_delay must be >= 0.1s, got %v", c.MinDelay)
	}
	if c.MaxDelay < 1*time.Second {
		return fmt.Errorf("backoff: max_delay must be >= 1s, got %v", c.MaxDelay)
	}
	if c.MinDelay > c.MaxDelay {
		return fmt.Errorf("backoff: min_delay %v exceeds max_delay %v", c.MinDelay, c.MaxDelay)
	}
	if c.Multiplier < 1.1 {
		return fmt.Errorf("backoff: multiplier must be >= 1.1, got %v", c.Multiplier)
	}
	if c.Increment < 100*time.Millisecond {
		return fmt.Errorf("backoff: increment must be >= 0.1s, got %v", c.Increment)
	}
	if c.Strategy != StrategyExponential && c.Strategy != StrategyLinear {
		return fmt.Errorf("backoff: strategy must be %q or %q, got %q",
			StrategyExponential, StrategyLinear, c.Strategy)
	}
	return nil
}

// StrategyFor resolves a message-level strategy name against this config.
// An empty name selects the configured default; an unrecognized name falls
// back to exponential.
func (c BackoffConfig) StrategyFor(name string) Strategy {
	if name == "" {
		name = c.Strategy
	}
	switch name {
	case StrategyLinear:
		return LinearBackoff{MinDelay: c.MinDelay, MaxDelay: c.MaxDelay, Increment: c.Increment}
	default:
		return ExponentialBackoff{MinDelay: c.MinDelay, MaxDelay: c.MaxDelay, Multiplier: c.Multiplier}
	}
}

// jsonBackoffConfig is the wire form: delays as seconds.
type jsonBackoffConfig struct {
	MinDelay   *float64 `json:"min_delay,omitempty"`
	MaxDelay   *float64 `json:"max_delay,omitempty"`
	Strategy   *string  `json:"strategy,omitempty"`
	Multiplier *float64 `json:"multiplier,omitempty"`
	Increment  *float64 `json:"increment,omitempty"`
}

func (c *BackoffConfig) UnmarshalJSON(data []byte) error {
	var raw jsonBackoffConfig
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = DefaultBackoffConfig()
	if raw.MinDelay != nil {
		c.MinDelay = secondsToDuration(*raw.MinDelay)
	}
	if raw.MaxDelay != nil {
		c.MaxDelay = secondsToDuration(*raw.MaxDelay)
	}
	if raw.Strategy != nil {
		c.Strategy = *raw.Strategy
	}
	if raw.Multiplier != nil {
		c.Multiplier = *raw.Multiplier
	}
	if raw.Increment != nil {
		c.Increment = secondsToDuration(*raw.Increment)
	}
	return nil
}

func (c BackoffConfig) MarshalJSON() ([]byte, error) {
	min := c.MinDelay.Seconds()
	max := c.MaxDelay.Seconds()
	inc := c.Increment.Seconds()
	return json.Marshal(jsonBackoffConfig{
		MinDelay:   &min,
		MaxDelay:   &max,
		Strategy:   &c.Strategy,
		Multiplier: &c.Multiplier,
		Increment:  &inc,
	})
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
