// Package api is the HTTP collaborator for the chat backend: context and
// message fetch, the HTTP send fallback, and file upload.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/irdop/limschat/internal/model/chat"
)

const (
	contextGetPath = "/v1/chat_context/get"
	messageGetPath = "/v1/message/get"
	chatSendPath   = "/ws/v1/gen_ai/chat"
	uploadPath     = "/v1/file/upload/opai"
)

// Client talks to the chat backend's REST surface. Every request carries
// the X-App-ID header.
type Client struct {
	baseURL    string
	uploadURL  string
	appID      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithUploadURL points file uploads at a dedicated host.
func WithUploadURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.uploadURL = u
		}
	}
}

// WithHTTPClient substitutes the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// NewClient creates a backend client.
func NewClient(baseURL, appID string, opts ...Option) *Client {
	c := &Client{
		baseURL:   baseURL,
		uploadURL: baseURL + uploadPath,
		appID:     appID,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetContextList fetches all known conversations. No request body means
// "get everything".
func (c *Client) GetContextList(ctx context.Context) ([]chat.Context, error) {
	var contexts []chat.Context
	if err := c.postJSON(ctx, contextGetPath, nil, &contexts); err != nil {
		return nil, fmt.Errorf("get context list: %w", err)
	}
	return contexts, nil
}

// GetContext fetches a single conversation, optionally anchored at a
// branch sibling via messageID.
func (c *Client) GetContext(ctx context.Context, contextID, messageID string) (chat.Context, error) {
	body := map[string]string{"contextId": contextID}
	if messageID != "" {
		body["messageId"] = messageID
	}

	var out chat.Context
	if err := c.postJSON(ctx, contextGetPath, body, &out); err != nil {
		return chat.Context{}, fmt.Errorf("get context %s: %w", contextID, err)
	}
	return out, nil
}

// GetMessages fetches messages by id. An empty id list is not an error.
func (c *Client) GetMessages(ctx context.Context, messageIDs []string) ([]chat.Message, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	var out []chat.Message
	body := map[string][]string{"messageIds": messageIDs}
	if err := c.postJSON(ctx, messageGetPath, body, &out); err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return out, nil
}

// SendMessage posts a chat payload over HTTP and returns the raw response
// for the normalizer; the caller decides how to interpret the shape.
func (c *Client) SendMessage(ctx context.Context, payload any) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.postJSON(ctx, chatSendPath, payload, &out); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-App-ID", c.appID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("backend returned %d: %s", resp.StatusCode, truncate(data, 200))
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
