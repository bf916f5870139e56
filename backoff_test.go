package xrelay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponentialBackoff_DelaySequence(t *testing.T) {
	// min=1s, max=300s, x2: retries 1..4 wait 1s, 2s, 4s, 8s.
	b := ExponentialBackoff{
		MinDelay:   1 * time.Second,
		MaxDelay:   300 * time.Second,
		Multiplier: 2.0,
	}
	last := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}
	for i, delay := range want {
		got := b.NextRetry(i+1, last)
		assert.Equal(t, last.Add(delay), got, "retry_count=%d", i+1)
	}
}

func TestExponentialBackoff_ClampsToMaxDelay(t *testing.T) {
	b := ExponentialBackoff{
		MinDelay:   1 * time.Second,
		MaxDelay:   10 * time.Second,
		Multiplier: 2.0,
	}
	last := time.Now()

	// 2^9 = 512s, well past the 10s cap.
	assert.Equal(t, last.Add(10*time.Second), b.NextRetry(10, last))

	// Absurd retry counts overflow the float product; still clamped.
	assert.Equal(t, last.Add(10*time.Second), b.NextRetry(10_000, last))
}

func TestExponentialBackoff_NeverBelowMinDelay(t *testing.T) {
	b := ExponentialBackoff{
		MinDelay:   5 * time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2.0,
	}
	last := time.Now()
	assert.Equal(t, last.Add(5*time.Second), b.NextRetry(1, last))
}

func TestLinearBackoff_DelaySequence(t *testing.T) {
	// min=1s, inc=5s: retries 1..4 wait 1s, 6s, 11s, 16s.
	b := LinearBackoff{
		MinDelay:  1 * time.Second,
		MaxDelay:  300 * time.Second,
		Increment: 5 * time.Second,
	}
	last := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	want := []time.Duration{
		1 * time.Second,
		6 * time.Second,
		11 * time.Second,
		16 * time.Second,
	}
	for i, delay := range want {
		got := b.NextRetry(i+1, last)
		assert.Equal(t, last.Add(delay), got, "retry_count=%d", i+1)
	}
}

func TestLinearBackoff_ClampsToMaxDelay(t *testing.T) {
	b := LinearBackoff{
		MinDelay:  1 * time.Second,
		MaxDelay:  12 * time.Second,
		Increment: 5 * time.Second,
	}
	last := time.Now()
	assert.Equal(t, last.Add(12*time.Second), b.NextRetry(4, last))
	assert.Equal(t, last.Add(12*time.Second), b.NextRetry(100, last))
}

func TestBackoffConfig_StrategyFor(t *testing.T) {
	cfg := DefaultBackoffConfig()

	assert.IsType(t, ExponentialBackoff{}, cfg.StrategyFor(StrategyExponential))
	assert.IsType(t, LinearBackoff{}, cfg.StrategyFor(StrategyLinear))

	// Unknown names fall back to exponential.
	assert.IsType(t, ExponentialBackoff{}, cfg.StrategyFor("fibonacci"))

	// Empty name selects the configured default.
	cfg.Strategy = StrategyLinear
	assert.IsType(t, LinearBackoff{}, cfg.StrategyFor(""))
}

func TestBackoffConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*BackoffConfig)
		wantErr bool
	}{
		{"defaults are valid", func(c *BackoffConfig) {}, false},
		{"min below floor", func(c *BackoffConfig) { c.MinDelay = 50 * time.Millisecond }, true},
		{"max below floor", func(c *BackoffConfig) { c.MaxDelay = 500 * time.Millisecond }, true},
		{"min above max", func(c *BackoffConfig) { c.MinDelay = 400 * time.Second }, true},
		{"multiplier too small", func(c *BackoffConfig) { c.Multiplier = 1.0 }, true},
		{"increment below floor", func(c *BackoffConfig) { c.Increment = 10 * time.Millisecond }, true},
		{"unknown strategy", func(c *BackoffConfig) { c.Strategy = "random" }, true},
		{"linear strategy", func(c *BackoffConfig) { c.Strategy = StrategyLinear }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultBackoffConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBackoffConfig_JSONRoundTrip(t *testing.T) {
	cfg := BackoffConfig{}
	require.NoError(t, cfg.UnmarshalJSON([]byte(`{
		"min_delay": 0.5,
		"max_delay": 120.0,
		"strategy": "linear",
		"multiplier": 3.0,
		"increment": 2.5
	}`)))

	assert.Equal(t, 500*time.Millisecond, cfg.MinDelay)
	assert.Equal(t, 120*time.Second, cfg.MaxDelay)
	assert.Equal(t, StrategyLinear, cfg.Strategy)
	assert.Equal(t, 3.0, cfg.Multiplier)
	assert.Equal(t, 2500*time.Millisecond, cfg.Increment)
}

func TestBackoffConfig_UnmarshalDefaultsMissingFields(t *testing.T) {
	cfg := BackoffConfig{}
	require.NoError(t, cfg.UnmarshalJSON([]byte(`{"strategy": "linear"}`)))

	def := DefaultBackoffConfig()
	assert.Equal(t, def.MinDelay, cfg.MinDelay)
	assert.Equal(t, def.MaxDelay, cfg.MaxDelay)
	assert.Equal(t, def.Multiplier, cfg.Multiplier)
	assert.Equal(t, StrategyLinear, cfg.Strategy)
}
