// Package communicator implements the base transport for sync channels.
package communicator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"

	"github.com/virtuclass/classkit/config"
	"github.com/virtuclass/classkit/log"
	"github.com/virtuclass/classkit/websocketutil"
)

// ErrClosed is returned when sending on a channel that is not open.
var ErrClosed = errors.New("connection is closed")

// IWebSocketChannel is the transport interface consumed by sync channels.
type IWebSocketChannel interface {
	Open(ctx context.Context) error
	Close(code int) error
	SendMessage(input []byte, inputType int) error
	IsOpen() bool
	GetStreamURL() string
	SetOnMessage(onMessageHandler func([]byte))
	SetOnClosed(onClosedHandler func(code int, err error))
}

// WebSocketChannel owns one websocket connection: a write-locked
// sender, a listener goroutine, and keepalive pings. The closure
// callback fires at most once per Open, and never for a local Close.
type WebSocketChannel struct {
	onMessage  func([]byte)
	onClosed   func(code int, err error)
	channelURL string
	isOpen     atomic.Bool
	writeLock  sync.Mutex
	connection *websocket.Conn
	logger     log.T
}

var _ IWebSocketChannel = (*WebSocketChannel)(nil)

// NewWebSocketChannel creates a WebSocketChannel for the given URL.
func NewWebSocketChannel(channelURL string, logger log.T) *WebSocketChannel {
	return &WebSocketChannel{
		channelURL: channelURL,
		logger:     logger.With("subsystem", "WebSocketChannel"),
	}
}

// GetStreamURL gets the stream url.
func (c *WebSocketChannel) GetStreamURL() string {
	return c.channelURL
}

// IsOpen checks if the channel is open.
func (c *WebSocketChannel) IsOpen() bool {
	return c.isOpen.Load()
}

// SetOnMessage sets the handler for inbound messages.
func (c *WebSocketChannel) SetOnMessage(onMessageHandler func([]byte)) {
	c.onMessage = onMessageHandler
}

// SetOnClosed sets the handler invoked when the connection is lost.
// code is the websocket close code when the far side sent a close
// frame, or CloseAbnormalClosure for plain network failures.
func (c *WebSocketChannel) SetOnClosed(onClosedHandler func(code int, err error)) {
	c.onClosed = onClosedHandler
}

// SendMessage sends a byte message through the websocket connection.
// Examples of message type are websocket.TextMessage or websocket.BinaryMessage.
func (c *WebSocketChannel) SendMessage(input []byte, inputType int) error {
	if !c.isOpen.Load() {
		return ErrClosed
	}

	if len(input) < 1 {
		return errors.New("empty input")
	}

	c.writeLock.Lock()
	err := c.connection.WriteMessage(inputType, input)
	c.writeLock.Unlock()

	if err != nil {
		return fmt.Errorf("writing websocket message: %w", err)
	}

	return nil
}

// Close closes the connection with the given websocket close code.
func (c *WebSocketChannel) Close(code int) error {
	c.logger.Debug("Closing websocket channel connection", "url", c.channelURL, "code", code)

	if c.isOpen.CompareAndSwap(true, false) {
		if err := websocketutil.NewWebsocketUtil(c.logger, nil).CloseConnection(c.connection, code); err != nil {
			return fmt.Errorf("closing websocket connection: %w", err)
		}

		return nil
	}

	c.logger.Debug("Websocket channel connection is already closed", "url", c.channelURL)

	return nil
}

// Open dials the websocket connection and starts the listener and
// keepalive routines.
func (c *WebSocketChannel) Open(ctx context.Context) error {
	ws, err := websocketutil.NewWebsocketUtil(c.logger, nil).OpenConnection(ctx, c.channelURL)
	if err != nil {
		return fmt.Errorf("opening websocket connection: %w", err)
	}

	c.connection = ws
	c.isOpen.Store(true)
	c.startPings(config.PingTimeInterval)

	// spin up a different routine to listen to the incoming traffic
	go func() {
		defer func() {
			if msg := recover(); msg != nil {
				c.logger.Error("WebsocketChannel listener run panic", "error", msg)
			}
		}()

		for {
			if !c.isOpen.Load() {
				c.logger.Debug("Ending the channel listening routine since the channel is closed", "url", c.channelURL)

				return
			}

			messageType, rawMessage, err := c.connection.ReadMessage()

			switch {
			case err != nil:
				// A local Close races the blocked read; only a loss
				// while open is reported upward.
				if c.isOpen.CompareAndSwap(true, false) {
					code := websocket.CloseAbnormalClosure

					var closeErr *websocket.CloseError
					if errors.As(err, &closeErr) {
						code = closeErr.Code
					}

					c.logger.Warn("Websocket connection lost", "url", c.channelURL, "code", code, "error", err.Error())

					if c.onClosed != nil {
						c.onClosed(code, err)
					}
				}

				return
			case messageType != websocket.TextMessage && messageType != websocket.BinaryMessage:
				// We only accept text messages which are interpreted as UTF-8 or binary encoded text.
				c.logger.Error("Invalid message type", "messageType", messageType)
			default:
				if c.onMessage != nil {
					c.onMessage(rawMessage)
				}
			}
		}
	}()

	return nil
}

// startPings starts the pinging process to keep the websocket channel alive.
func (c *WebSocketChannel) startPings(pingInterval time.Duration) {
	go func() {
		for {
			if !c.isOpen.Load() {
				return
			}

			c.logger.Trace("WebsocketChannel: sending ping message")
			c.writeLock.Lock()
			err := c.connection.WriteMessage(websocket.PingMessage, []byte("keepalive"))
			c.writeLock.Unlock()

			if err != nil {
				c.logger.Debug("Error sending websocket ping", "error", err)

				return
			}

			time.Sleep(pingInterval)
		}
	}()
}
