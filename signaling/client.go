/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2026 NestChat Contributors
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package signaling provides the WebSocket signaling channel used to
// exchange call offers, answers, ICE candidates, and hangups between
// peers via the relay server.
package signaling

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/nestchat/nestchat-go-sdk/nestsdk"
)

// Handler is a function that handles an inbound signaling message
type Handler func(msg *Message)

// Config holds the configuration for the Signaling client
type Config struct {
	// URL is the relay server base URL, e.g. ws://localhost:8000.
	// The client appends /ws/{userID} and the auth token itself.
	URL string

	// ForceCloseDelay is how long Disconnect waits for a clean close
	// before forcing the connection shut.
	ForceCloseDelay time.Duration

	// PingInterval is how often to send WebSocket pings.
	PingInterval time.Duration

	// PongTimeout is how long to wait for a pong before considering
	// the connection dead.
	PongTimeout time.Duration

	// BackoffTimeMax is the maximum backoff time between reconnection
	// attempts.
	BackoffTimeMax time.Duration

	// BackoffTimeReset is the initial backoff time for reconnection
	// attempts.
	BackoffTimeReset time.Duration

	// MaxRetries is the maximum number of reconnection attempts after
	// an established connection drops.
	MaxRetries int

	// InitialConnectionMaxRetries is the maximum number of attempts
	// for the first connection.
	InitialConnectionMaxRetries int

	// HandshakeTimeout is the WebSocket dial timeout.
	HandshakeTimeout time.Duration
}

// DefaultConfig returns the default configuration for the Signaling client
func DefaultConfig() *Config {
	return &Config{
		URL:                         "ws://localhost:8000",
		ForceCloseDelay:             10 * time.Second,
		PingInterval:                30 * time.Second,
		PongTimeout:                 10 * time.Second,
		BackoffTimeMax:              32 * time.Second,
		BackoffTimeReset:            1 * time.Second,
		MaxRetries:                  3,
		InitialConnectionMaxRetries: 5,
		HandshakeTimeout:            10 * time.Second,
	}
}

// Client is the signaling WebSocket client
type Client struct {
	coreClient *nestsdk.Client
	config     *Config

	mu         sync.Mutex
	conn       *websocket.Conn
	connected  bool
	connecting bool
	userID     string
	done       chan struct{}

	writeMu sync.Mutex

	handlers map[string][]Handler
}

// New creates a new Signaling client
func New(coreClient *nestsdk.Client, config *Config) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	return &Client{
		coreClient: coreClient,
		config:     config,
		handlers:   make(map[string][]Handler),
	}
}

// IsConnected returns whether the client has an established connection
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// On registers a handler for the given message type. The wildcard type
// "*" receives every message.
func (c *Client) On(msgType MessageType, handler Handler) {
	if handler == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[string(msgType)] = append(c.handlers[string(msgType)], handler)
}

// ClearHandlers removes all handlers for the given message type
func (c *Client) ClearHandlers(msgType MessageType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, string(msgType))
}

// connectURL builds the relay endpoint for the given user
func (c *Client) connectURL(userID string) (string, error) {
	base, err := url.Parse(c.config.URL)
	if err != nil {
		return "", fmt.Errorf("invalid signaling URL: %w", err)
	}

	base.Path = fmt.Sprintf("/ws/%s", userID)
	q := base.Query()
	q.Set("token", c.coreClient.GetAccessToken())
	base.RawQuery = q.Encode()

	return base.String(), nil
}

// Connect establishes the WebSocket connection for the given user and
// starts the read and ping loops. Already connected is a no-op; a
// concurrent connection attempt is an error.
func (c *Client) Connect(userID string) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	if c.connecting {
		c.mu.Unlock()
		return fmt.Errorf("connection attempt already in progress")
	}
	c.connecting = true
	c.userID = userID
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.connecting = false
		c.mu.Unlock()
	}()

	endpoint, err := c.connectURL(userID)
	if err != nil {
		return err
	}

	conn, err := c.dialWithBackoff(endpoint, c.config.InitialConnectionMaxRetries)
	if err != nil {
		return err
	}

	c.start(conn)
	return nil
}

// dialWithBackoff dials the endpoint with exponential backoff up to
// maxRetries attempts.
func (c *Client) dialWithBackoff(endpoint string, maxRetries int) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.config.HandshakeTimeout,
	}

	backoff := c.config.BackoffTimeReset
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			log.Debug().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying signaling connection")
			time.Sleep(backoff)
			backoff *= 2
			if backoff > c.config.BackoffTimeMax {
				backoff = c.config.BackoffTimeMax
			}
		}

		conn, _, err := dialer.Dial(endpoint, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("failed to connect to signaling server: %w", lastErr)
}

// start installs the connection and launches the loops
func (c *Client) start(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.done = make(chan struct{})
	done := c.done
	c.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(c.config.PingInterval + c.config.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(c.config.PingInterval + c.config.PongTimeout))
	})

	go c.readLoop(conn, done)
	go c.pingLoop(conn, done)
}

// readLoop reads and dispatches messages until the connection drops,
// then attempts to reconnect.
func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				// Deliberate disconnect.
				return
			default:
			}

			log.Warn().Err(err).Msg("signaling connection lost")
			c.handleConnectionLoss(conn)
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Msg("failed to parse signaling message")
			continue
		}

		c.dispatch(&msg)
	}
}

// dispatch invokes the registered handlers for the message's type and
// the wildcard handlers.
func (c *Client) dispatch(msg *Message) {
	c.mu.Lock()
	typed := append([]Handler(nil), c.handlers[string(msg.Type)]...)
	wildcard := append([]Handler(nil), c.handlers["*"]...)
	c.mu.Unlock()

	for _, h := range typed {
		h(msg)
	}
	for _, h := range wildcard {
		h(msg)
	}
}

// pingLoop keeps the connection alive
func (c *Client) pingLoop(conn *websocket.Conn, done chan struct{}) {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.config.PongTimeout))
			c.writeMu.Unlock()
			if err != nil {
				log.Warn().Err(err).Msg("signaling ping failed")
				return
			}
		}
	}
}

// handleConnectionLoss marks the client disconnected and attempts to
// re-establish the connection with backoff.
func (c *Client) handleConnectionLoss(conn *websocket.Conn) {
	conn.Close()

	c.mu.Lock()
	if c.conn != conn {
		// A newer connection has already replaced this one.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	userID := c.userID
	c.mu.Unlock()

	c.dispatch(&Message{Type: MessageTypeDisconnected})

	endpoint, err := c.connectURL(userID)
	if err != nil {
		log.Error().Err(err).Msg("cannot rebuild signaling URL for reconnect")
		return
	}

	newConn, err := c.dialWithBackoff(endpoint, c.config.MaxRetries)
	if err != nil {
		log.Error().Err(err).Msg("signaling reconnection failed")
		return
	}

	log.Info().Msg("signaling connection re-established")
	c.start(newConn)
	c.dispatch(&Message{Type: MessageTypeReconnected})
}

// Send writes a message to the signaling server. It fails when the
// client is not connected.
func (c *Client) Send(msg *Message) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return fmt.Errorf("signaling client is not connected")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send signaling message: %w", err)
	}
	return nil
}

// Disconnect closes the connection. Not connected is a no-op.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	if !c.connected || c.conn == nil {
		c.mu.Unlock()
		return nil
	}
	conn := c.conn
	done := c.done
	c.conn = nil
	c.connected = false
	c.mu.Unlock()

	close(done)

	c.writeMu.Lock()
	err := conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(c.config.ForceCloseDelay),
	)
	c.writeMu.Unlock()
	if err != nil {
		log.Debug().Err(err).Msg("close message write failed")
	}

	return conn.Close()
}
