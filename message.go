package xrelay

import (
	"time"
)

// MessageType identifies the transport family a destination belongs to.
type MessageType string

const (
	MessageTypeSMS      MessageType = "sms"
	MessageTypeTelegram MessageType = "telegram"
	MessageTypeEmail    MessageType = "email"
)

// Priority levels. Not used for ordering yet; carried for adapters that
// support priority flags on their side.
const (
	PriorityNormal = 0
	PriorityHigh   = 1
)

// Destination is a single delivery target: a channel kind plus the address
// understood by that channel (phone number, chat ID, email address).
type Destination struct {
	Type    MessageType `json:"type"`
	Address string      `json:"address"`
}

// Message is the unit of communication traveling the relay.
//
// Retry bookkeeping (RetryCount, LastRetryAt, NextRetryAt) is owned by the
// delivery Service and mutated only during ProcessQueue. NextRetryAt is set
// iff RetryCount > 0 and the message has not yet exhausted its retries.
type Message struct {
	// Content is the message body.
	Content string `json:"content"`
	// Destinations lists the targets to deliver to.
	Destinations []Destination `json:"destinations"`
	// Sender identifies the origin (phone number, bot user, etc).
	Sender string `json:"sender"`
	// Priority is 0 (normal) or 1 (high).
	Priority int `json:"priority"`
	// RetryCount is the number of failed delivery attempts so far.
	RetryCount int `json:"retry_count"`
	// LastRetryAt is the instant of the most recent failed attempt.
	LastRetryAt *time.Time `json:"last_retry_timestamp,omitempty"`
	// NextRetryAt is the earliest instant the next attempt is permitted.
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	// BackoffStrategy names the backoff used for this message
	// ("exponential" or "linear"). Unknown names fall back to exponential.
	BackoffStrategy string `json:"backoff_strategy"`
}

// NewMessage builds a fresh message with default priority and backoff.
func NewMessage(content, sender string, destinations ...Destination) *Message {
	return &Message{
		Content:         content,
		Destinations:    destinations,
		Sender:          sender,
		Priority:        PriorityNormal,
		BackoffStrategy: StrategyExponential,
	}
}

// Addresses returns the destination addresses, for logging.
func (m *Message) Addresses() []string {
	out := make([]string, len(m.Destinations))
	for i, d := range m.Destinations {
		out[i] = d.Address
	}
	return out
}
