// Package push delivers mobile push notifications through an Expo-compatible
// HTTP endpoint.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultEndpoint is the public Expo push API.
const DefaultEndpoint = "https://exp.host/--/api/v2/push/send"

// MaxBatchSize is the largest number of messages the endpoint accepts per request.
const MaxBatchSize = 100

// ErrBatchTooLarge is returned when SendBatch receives more than MaxBatchSize messages.
var ErrBatchTooLarge = errors.New("push: batch exceeds maximum size")

// RichContent carries media shown in an expanded notification.
type RichContent struct {
	Image string `json:"image,omitempty"`
}

// Message is one push message in the endpoint's wire format.
type Message struct {
	To             string            `json:"to"`
	Title          string            `json:"title,omitempty"`
	Body           string            `json:"body,omitempty"`
	Data           map[string]string `json:"data,omitempty"`
	Sound          string            `json:"sound,omitempty"`
	Priority       string            `json:"priority,omitempty"`
	ChannelID      string            `json:"channelId,omitempty"`
	MutableContent bool              `json:"mutableContent,omitempty"`
	RichContent    *RichContent      `json:"richContent,omitempty"`
}

// NewMessage builds a plain message, or a rich one when imageURL is set.
func NewMessage(to, title, body string, data map[string]string, imageURL string) Message {
	msg := Message{
		To:        to,
		Title:     title,
		Body:      body,
		Data:      data,
		Sound:     "default",
		Priority:  "high",
		ChannelID: "default",
	}
	if imageURL != "" {
		msg.MutableContent = true
		msg.RichContent = &RichContent{Image: imageURL}
	}
	return msg
}

// Ticket is the endpoint's receipt for one message.
type Ticket struct {
	Status  string         `json:"status"`
	ID      string         `json:"id,omitempty"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}

// OK reports whether the endpoint accepted the message.
func (t Ticket) OK() bool {
	return t.Status == "ok"
}

// HTTPError is returned when the endpoint answers with a non-2xx status.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("push: endpoint returned %d: %s", e.StatusCode, e.Body)
}

type sendResponse struct {
	Data   []Ticket `json:"data"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// Config configures a Client.
type Config struct {
	Endpoint    string
	AccessToken string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client sends message batches to the push endpoint.
type Client struct {
	endpoint    string
	accessToken string
	http        *http.Client
}

// NewClient constructs a client. Zero config values fall back to defaults.
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{endpoint: cfg.Endpoint, accessToken: cfg.AccessToken, http: httpClient}
}

// IsValidToken reports whether token is addressable by this client.
func (c *Client) IsValidToken(token string) bool {
	return IsValidToken(token)
}

// MaxBatchSize returns the endpoint's batch limit.
func (c *Client) MaxBatchSize() int {
	return MaxBatchSize
}

// SendBatch submits messages in one request. Tickets are returned in message order.
func (c *Client) SendBatch(ctx context.Context, messages []Message) ([]Ticket, error) {
	if len(messages) == 0 {
		return nil, nil
	}
	if len(messages) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %d messages", ErrBatchTooLarge, len(messages))
	}

	payload, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("push: encode batch: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("push: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("push: send batch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("push: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(body))}
	}

	var decoded sendResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("push: decode response: %w", err)
	}
	if len(decoded.Errors) > 0 && len(decoded.Data) == 0 {
		return nil, fmt.Errorf("push: request rejected: %s: %s", decoded.Errors[0].Code, decoded.Errors[0].Message)
	}
	if len(decoded.Data) != len(messages) {
		return nil, fmt.Errorf("push: expected %d tickets, got %d", len(messages), len(decoded.Data))
	}
	return decoded.Data, nil
}
