// Package transport moves messages between the conversation core and the
// backend: a WebSocket connection with auto-reconnect and an HTTP send
// fallback.
package transport

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Status describes the WebSocket connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusReconnecting Status = "reconnecting"
	StatusFailed       Status = "reconnect_failed"
)

const (
	maxReconnectAttempts = 5
	reconnectDelay       = time.Second
	connectTimeout       = 10 * time.Second
)

// WSClient maintains the WebSocket connection. Callbacks fire from the
// read goroutine; handlers must not block.
type WSClient struct {
	url       string
	dialer    *websocket.Dialer
	onMessage func(json.RawMessage)
	onStatus  func(Status)

	mu       sync.Mutex
	conn     *websocket.Conn
	status   Status
	attempts int
	closed   bool
}

// NewWSClient prepares a client for the given ws:// or wss:// URL.
func NewWSClient(url string) *WSClient {
	return &WSClient{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: connectTimeout,
		},
		status: StatusDisconnected,
	}
}

// OnMessage registers the inbound message handler. Call before Connect.
func (c *WSClient) OnMessage(fn func(json.RawMessage)) { c.onMessage = fn }

// OnStatus registers the connection-status handler. Call before Connect.
func (c *WSClient) OnStatus(fn func(Status)) { c.onStatus = fn }

// Connect dials the server and starts the read loop. A failed initial dial
// is returned to the caller; the client then stays in HTTP-only mode until
// Connect is called again.
func (c *WSClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.setStatus(StatusConnecting)
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		c.setStatus(StatusDisconnected)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.attempts = 0
	c.mu.Unlock()

	c.setStatus(StatusConnected)
	go c.readLoop(conn)
	return nil
}

// Send writes one JSON message and reports whether the write was handed to
// the connection. A false return tells the caller to fall back to HTTP.
func (c *WSClient) Send(v any) bool {
	c.mu.Lock()
	conn := c.conn
	connected := c.status == StatusConnected
	c.mu.Unlock()

	if conn == nil || !connected {
		log.Printf("[ws] not connected, cannot send")
		return false
	}
	if err := conn.WriteJSON(v); err != nil {
		log.Printf("[ws] write failed: %v", err)
		return false
	}
	return true
}

// IsConnected reports whether the connection is currently usable.
func (c *WSClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == StatusConnected
}

// Status returns the current connection status.
func (c *WSClient) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Close shuts the connection down for good; no reconnect follows.
func (c *WSClient) Close() error {
	c.mu.Lock()
	c.closed = true
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return conn.Close()
}

func (c *WSClient) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()

			if closed || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				c.setStatus(StatusDisconnected)
				return
			}
			log.Printf("[ws] connection lost: %v", err)
			c.reconnect()
			return
		}

		if !json.Valid(data) {
			log.Printf("[ws] dropping non-JSON frame of %d bytes", len(data))
			continue
		}
		if c.onMessage != nil {
			c.onMessage(json.RawMessage(data))
		}
	}
}

// reconnect retries with a linearly growing delay, then gives up into
// HTTP-only mode.
func (c *WSClient) reconnect() {
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		if attempt > maxReconnectAttempts {
			log.Printf("[ws] max reconnection attempts reached, switching to HTTP-only mode")
			c.setStatus(StatusFailed)
			return
		}

		c.setStatus(StatusReconnecting)
		delay := reconnectDelay * time.Duration(attempt)
		log.Printf("[ws] reconnecting (%d/%d) in %s", attempt, maxReconnectAttempts, delay)
		time.Sleep(delay)

		conn, _, err := c.dialer.Dial(c.url, nil)
		if err != nil {
			log.Printf("[ws] reconnect attempt %d failed: %v", attempt, err)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.attempts = 0
		c.mu.Unlock()
		c.setStatus(StatusConnected)
		go c.readLoop(conn)
		return
	}
}

func (c *WSClient) setStatus(s Status) {
	c.mu.Lock()
	changed := c.status != s
	c.status = s
	fn := c.onStatus
	c.mu.Unlock()

	if changed && fn != nil {
		fn(s)
	}
}
