// Package websocketutil contains methods for interacting with websocket connections.
package websocketutil

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/virtuclass/classkit/config"
	"github.com/virtuclass/classkit/log"
)

// ErrNil is returned when the websocket connection is nil.
var ErrNil = errors.New("websocket is nil")

// IWebsocketUtil is the interface for the websocketutil.
type IWebsocketUtil interface {
	OpenConnection(ctx context.Context, url string) (*websocket.Conn, error)
	CloseConnection(ws *websocket.Conn, code int) error
}

// WebsocketUtil struct provides functionality around creating and maintaining websockets.
type WebsocketUtil struct {
	dialer *websocket.Dialer
	log    log.T
}

// NewWebsocketUtil is the factory function for websocketutil.
func NewWebsocketUtil(logger log.T, dialerInput *websocket.Dialer) *WebsocketUtil {
	if dialerInput == nil {
		dialerInput = &websocket.Dialer{
			HandshakeTimeout: config.HandshakeTimeout,
		}
	}

	return &WebsocketUtil{
		dialer: dialerInput,
		log:    logger,
	}
}

// OpenConnection opens a websocket connection provided an input url.
func (u *WebsocketUtil) OpenConnection(ctx context.Context, url string) (*websocket.Conn, error) {
	u.log.Debug("Opening websocket connection", "url", url)

	conn, _, err := u.dialer.DialContext(ctx, url, nil)
	if err != nil {
		u.log.Error("dialing websocket", "error", err.Error())

		return nil, fmt.Errorf("dialing websocket: %w", err)
	}

	u.log.Debug("Websocket connection opened")

	return conn, nil
}

// CloseConnection closes a websocket connection, first sending a close
// frame with the given code so the far side can tell an intentional
// closure from a failure.
func (u *WebsocketUtil) CloseConnection(ws *websocket.Conn, code int) error {
	if ws == nil {
		return ErrNil
	}

	u.log.Debug("Closing websocket connection", "remoteAddr", ws.RemoteAddr().String(), "code", code)

	deadline := time.Now().Add(time.Second)
	if err := ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), deadline); err != nil {
		u.log.Debug("Error sending websocket close frame", "error", err.Error())
	}

	if err := ws.Close(); err != nil {
		u.log.Error("closing websocket", "error", err.Error())

		return fmt.Errorf("closing websocket: %w", err)
	}

	return nil
}
