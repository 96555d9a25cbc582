// Package telegram provides a minimal Telegram Bot API client and the webhook
// update types.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Telegram rejects messages above 4096 characters; stay under with margin.
const maxMessageChars = 3900

// Update is one incoming webhook event.
type Update struct {
	UpdateID int64    `json:"update_id"`
	Message  *Message `json:"message,omitempty"`
}

// Message is an incoming or outgoing chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from,omitempty"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text,omitempty"`
}

// User identifies the sender of a message.
type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name,omitempty"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// apiResponse is the generic Telegram API response wrapper.
type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// Client is a minimal Telegram Bot API client.
type Client struct {
	apiBase    string
	httpClient *http.Client
}

// NewClient creates a Telegram client for the given bot token.
func NewClient(botToken string, timeout time.Duration) *Client {
	return &Client{
		apiBase: "https://api.telegram.org/bot" + botToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewClientWithBase creates a client against a custom API base URL, used in
// tests.
func NewClientWithBase(apiBase string, timeout time.Duration) *Client {
	return &Client{
		apiBase:    strings.TrimSuffix(apiBase, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SendMessage sends a text message to the given chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	payload := map[string]interface{}{
		"chat_id": chatID,
		"text":    truncate(text, maxMessageChars),
	}
	return c.post(ctx, "/sendMessage", payload)
}

// SetWebhook registers the webhook URL with the Bot API.
func (c *Client) SetWebhook(ctx context.Context, url string) error {
	return c.post(ctx, "/setWebhook", map[string]interface{}{"url": url})
}

func (c *Client) post(ctx context.Context, method string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+method, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram %s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", method, err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", method, err)
	}
	if !parsed.OK {
		return fmt.Errorf("telegram %s rejected: %s", method, parsed.Description)
	}
	return nil
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
