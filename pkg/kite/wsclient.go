package kite

import (
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSClient handles the ticker WebSocket connection and message routing.
// Authentication rides on query parameters; subscriptions are JSON control
// messages and market data arrives as binary frames.
type WSClient struct {
	url         string
	apiKey      string
	accessToken string
	tokens      []uint32
	mode        string
	conn        *websocket.Conn
	handler     func([]byte)
	closed      atomic.Bool
	logger      *zap.Logger
}

func NewWSClient(wsURL, apiKey, accessToken string, logger *zap.Logger) *WSClient {
	return &WSClient{
		url:         wsURL,
		apiKey:      apiKey,
		accessToken: accessToken,
		mode:        ModeFull,
		logger:      logger,
	}
}

// SetMessageHandler sets the function to handle incoming binary frames.
func (c *WSClient) SetMessageHandler(h func([]byte)) {
	c.handler = h
}

// Connect establishes the WebSocket connection and subscribes to the given
// instrument tokens. It does not start the listener.
func (c *WSClient) Connect(tokens []uint32) error {
	c.tokens = tokens

	conn, err := c.dial()
	if err != nil {
		c.logger.Error("Failed to connect to WebSocket", zap.String("url", c.url), zap.Error(err))
		return err
	}
	c.conn = conn
	c.logger.Info("WebSocket connected", zap.String("url", c.url), zap.Int("tokens", len(tokens)))

	return c.subscribe(conn)
}

// Listen reads frames until Close is called, reconnecting and resubscribing
// on read errors.
func (c *WSClient) Listen() {
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.Error("WebSocket read error", zap.Error(err))

			// Retry reconnecting indefinitely
			for {
				time.Sleep(3 * time.Second)
				if c.closed.Load() {
					return
				}
				if err := c.reconnectAndResubscribe(); err != nil {
					c.logger.Warn("Retrying reconnect...", zap.Error(err))
					continue
				}
				c.logger.Info("Reconnected successfully")
				break
			}
			continue // Start listening again with the new connection
		}

		if c.handler != nil {
			c.handler(msg)
		}
	}
}

// Close stops the listener and closes the underlying connection.
func (c *WSClient) Close() error {
	c.closed.Store(true)
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *WSClient) dial() (*websocket.Conn, error) {
	u, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("parse ws url: %w", err)
	}
	q := u.Query()
	q.Set("api_key", c.apiKey)
	q.Set("access_token", c.accessToken)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	return conn, err
}

func (c *WSClient) subscribe(conn *websocket.Conn) error {
	subMsg := map[string]interface{}{
		"a": "subscribe",
		"v": c.tokens,
	}
	if err := conn.WriteJSON(subMsg); err != nil {
		return fmt.Errorf("websocket subscribe failed: %w", err)
	}

	// Switch to full mode so packets carry volume and exchange timestamps.
	modeMsg := map[string]interface{}{
		"a": "mode",
		"v": []interface{}{c.mode, c.tokens},
	}
	if err := conn.WriteJSON(modeMsg); err != nil {
		return fmt.Errorf("websocket mode switch failed: %w", err)
	}
	return nil
}

func (c *WSClient) reconnectAndResubscribe() error {
	newConn, err := c.dial()
	if err != nil {
		return err
	}

	// Close the old connection if it exists
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.conn = newConn

	return c.subscribe(newConn)
}
