// Package telegram provides an integration port backed by the Telegram Bot
// API. Send posts to a fixed chat; Fetch drains bot updates one at a time,
// non-blockingly, tracking the update offset.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/trickstertwo/xrelay"
)

const AdapterName = "telegram"

const defaultAPIBaseURL = "https://api.telegram.org"

// Config for a Telegram bot port.
type Config struct {
	// Name identifies this integration instance in logs.
	Name string
	// BotToken is the bot API token.
	BotToken string
	// ChatID is the chat messages are delivered to.
	ChatID string
	// APIBaseURL overrides the Telegram endpoint (tests, proxies).
	APIBaseURL string
	// DefaultRecipient is the SMS address inbound chat messages are
	// destined for.
	DefaultRecipient string
	// Timeout bounds each API call.
	Timeout time.Duration
}

// ConfigFromMap converts a generic config blob into Config with defaults.
func ConfigFromMap(cfg map[string]any) Config {
	getString := func(k, d string) string {
		if v, ok := cfg[k].(string); ok && v != "" {
			return v
		}
		return d
	}
	getDur := func(k string, d time.Duration) time.Duration {
		switch v := cfg[k].(type) {
		case time.Duration:
			return v
		case string:
			if p, err := time.ParseDuration(v); err == nil {
				return p
			}
		case float64:
			return time.Duration(v * float64(time.Second))
		}
		return d
	}

	return Config{
		Name:             getString("name", AdapterName),
		BotToken:         getString("bot_token", ""),
		ChatID:           getString("chat_id", ""),
		APIBaseURL:       getString("api_base_url", defaultAPIBaseURL),
		DefaultRecipient: getString("default_recipient", ""),
		Timeout:          getDur("timeout", 10*time.Second),
	}
}

// Factory is the xrelay.PortFactory for the Telegram adapter.
func Factory(cfg map[string]any) (xrelay.Port, error) {
	c := ConfigFromMap(cfg)
	if c.BotToken == "" {
		return nil, fmt.Errorf("telegram: bot_token required")
	}
	if c.ChatID == "" {
		return nil, fmt.Errorf("telegram: chat_id required")
	}
	return New(c), nil
}

// Port implements xrelay.Port over the Bot API.
type Port struct {
	cfg    Config
	client *http.Client
	offset int64
}

var _ xrelay.Port = (*Port)(nil)

// New creates a Telegram port; Initialize verifies the token.
func New(cfg Config) *Port {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = defaultAPIBaseURL
	}
	return &Port{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *Port) Name() string { return p.cfg.Name }

// apiResponse is the Bot API envelope.
type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		From *struct {
			Username string `json:"username"`
			ID       int64  `json:"id"`
		} `json:"from"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

// Initialize verifies the bot token via getMe.
func (p *Port) Initialize(ctx context.Context) error {
	var me json.RawMessage
	if err := p.call(ctx, "getMe", nil, &me); err != nil {
		return fmt.Errorf("telegram: verify token: %w", err)
	}
	return nil
}

// Shutdown releases idle connections.
func (p *Port) Shutdown(_ context.Context) error {
	p.client.CloseIdleConnections()
	return nil
}

// Send delivers the message text to the configured chat.
func (p *Port) Send(ctx context.Context, msg *xrelay.Message) error {
	payload := map[string]any{
		"chat_id": p.cfg.ChatID,
		"text":    fmt.Sprintf("From %s: %s", msg.Sender, msg.Content),
	}
	var sent json.RawMessage
	if err := p.call(ctx, "sendMessage", payload, &sent); err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	return nil
}

// Fetch returns at most one pending bot update as a relay message, advancing
// the update offset so each update is consumed exactly once.
func (p *Port) Fetch(ctx context.Context) (*xrelay.Message, error) {
	payload := map[string]any{
		"offset":  p.offset,
		"limit":   1,
		"timeout": 0,
	}
	var updates []update
	if err := p.call(ctx, "getUpdates", payload, &updates); err != nil {
		return nil, fmt.Errorf("telegram: fetch: %w", err)
	}
	if len(updates) == 0 {
		return nil, nil
	}

	u := updates[0]
	p.offset = u.UpdateID + 1
	if u.Message == nil || u.Message.Text == "" {
		return nil, nil
	}

	sender := strconv.FormatInt(u.Message.Chat.ID, 10)
	if u.Message.From != nil && u.Message.From.Username != "" {
		sender = u.Message.From.Username
	}
	return xrelay.NewMessage(
		u.Message.Text,
		sender,
		xrelay.Destination{Type: xrelay.MessageTypeSMS, Address: p.cfg.DefaultRecipient},
	), nil
}

// call posts a Bot API method and decodes the result envelope.
func (p *Port) call(ctx context.Context, method string, payload map[string]any, result any) error {
	url := fmt.Sprintf("%s/bot%s/%s", p.cfg.APIBaseURL, p.cfg.BotToken, method)

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !envelope.OK {
		return fmt.Errorf("%s failed: %s", method, envelope.Description)
	}
	if result != nil {
		return json.Unmarshal(envelope.Result, result)
	}
	return nil
}
