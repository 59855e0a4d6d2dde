// Package telegram provides the minimal Bot API surface the broker needs:
// webhook update types, /start command parsing and outbound replies.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Update is an inbound webhook payload. Only message updates are handled.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message"`
}

// Message is an inbound chat message.
type Message struct {
	Chat Chat   `json:"chat"`
	From *User  `json:"from"`
	Text string `json:"text"`
}

// Chat identifies the conversation to reply into.
type Chat struct {
	ID int64 `json:"id"`
}

// User is the platform identity of the sender.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	Username  string `json:"username"`
}

// ParseStart recognizes "/start" commands. ok reports whether text is a
// /start command at all; sessionID is its first argument, empty when the
// command carries none.
func ParseStart(text string) (sessionID string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", false
	}
	// commands may arrive as /start@botname in group chats
	cmd, _, _ := strings.Cut(fields[0], "@")
	if cmd != "/start" {
		return "", false
	}
	if len(fields) > 1 {
		sessionID = fields[1]
	}
	return sessionID, true
}

const defaultBaseURL = "https://api.telegram.org"

// Client sends outbound bot messages.
type Client struct {
	httpc *http.Client
	base  string
	token string
}

// NewClient constructs a bot client. baseURL overrides the Bot API host
// (tests); empty selects the production endpoint.
func NewClient(token, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		httpc: &http.Client{Timeout: 10 * time.Second},
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
	}
}

// SendMessage posts a plain-text reply into the chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	body, err := json.Marshal(map[string]any{
		"chat_id": chatID,
		"text":    text,
	})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/bot%s/sendMessage", c.base, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sendMessage: unexpected status %d", resp.StatusCode)
	}
	return nil
}
