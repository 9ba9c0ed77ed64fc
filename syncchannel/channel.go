// Package syncchannel implements the real-time sync channel: a duplex,
// order-tolerant broadcast connection that multiplexes typed messages
// over one websocket and reconciles state drift after reconnects.
package syncchannel

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/atomic"

	"github.com/virtuclass/classkit/communicator"
	"github.com/virtuclass/classkit/config"
	"github.com/virtuclass/classkit/faults"
	"github.com/virtuclass/classkit/log"
	"github.com/virtuclass/classkit/retry"
	"github.com/virtuclass/classkit/syncmsg"
)

// Handler processes one inbound envelope. Handlers registered for a
// type run in registration order.
type Handler func(envelope syncmsg.Envelope)

// ISyncChannel defines the sync channel operations used by the classroom client.
type ISyncChannel interface {
	Connect(ctx context.Context, sessionID, userID string) error
	Disconnect() error
	Reconnect(ctx context.Context) error
	Send(envelope syncmsg.Envelope) error
	Publish(messageType syncmsg.Type, payload any) error
	On(messageType syncmsg.Type, handler Handler)
	Off(messageType syncmsg.Type, handler Handler)
	Snapshot() Snapshot
	SubscribeStatus(handler retry.StatusHandler)
}

// Channel maintains one logical broadcast channel per session. It owns
// its transport handle exclusively for its lifetime and recovers from
// abnormal closures with its own backoff loop, issuing a sync-request
// after every successful reconnect before accepting outbound traffic.
type Channel struct {
	logger   log.T
	endpoint string
	path     string
	policy   retry.Policy

	mu        sync.Mutex
	state     State
	attempt   int
	sessionID string
	userID    string
	ws        communicator.IWebSocketChannel
	handlers  map[syncmsg.Type][]Handler

	statusHandlers []retry.StatusHandler

	// reconnecting guards against a second closure event duplicating
	// an in-flight reconnection episode.
	reconnecting    *atomic.Bool
	cancelReconnect context.CancelFunc

	// newTransport is injectable for tests.
	newTransport func(url string) communicator.IWebSocketChannel
}

var _ ISyncChannel = (*Channel)(nil)

// NewAIOutputChannel creates the sync channel carrying AI-output content.
func NewAIOutputChannel(endpoint string, logger log.T) *Channel {
	return newChannel(endpoint, config.AIOutputChannelPath, logger.With("channel", "ai-output"))
}

// NewChatChannel creates the sync channel relaying chat messages.
func NewChatChannel(endpoint string, logger log.T) *Channel {
	return newChannel(endpoint, config.ChatChannelPath, logger.With("channel", "chat"))
}

func newChannel(endpoint, path string, logger log.T) *Channel {
	c := &Channel{
		logger:       logger,
		endpoint:     endpoint,
		path:         path,
		policy:       retry.ChannelPolicy(),
		state:        Disconnected,
		handlers:     make(map[syncmsg.Type][]Handler),
		reconnecting: atomic.NewBool(false),
	}
	c.newTransport = func(url string) communicator.IWebSocketChannel {
		return communicator.NewWebSocketChannel(url, logger)
	}

	return c
}

// SetPolicy overrides the default backoff schedule, typically from the
// deployment configuration. Must be called before Connect.
func (c *Channel) SetPolicy(policy retry.Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.policy = policy
}

// Policy returns the backoff schedule the channel reconnects with.
func (c *Channel) Policy() retry.Policy {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.policy
}

// Snapshot returns the UI-facing projection of the channel state.
func (c *Channel) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{State: c.state, Attempt: c.attempt}
}

// SubscribeStatus registers an observer for reconnection progress.
// Statuses are relayed unchanged from the embedded backoff runs.
func (c *Channel) SubscribeStatus(handler retry.StatusHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.statusHandlers = append(c.statusHandlers, handler)
}

// On registers a handler for a message type. Multiple handlers may be
// registered per type; all are invoked for every inbound message of
// that type, in registration order.
func (c *Channel) On(messageType syncmsg.Type, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[messageType] = append(c.handlers[messageType], handler)
}

// Off deregisters a handler previously registered using On.
func (c *Channel) Off(messageType syncmsg.Type, handler Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	registered := c.handlers[messageType]
	for i, v := range registered {
		if reflect.ValueOf(v).Pointer() == reflect.ValueOf(handler).Pointer() {
			c.handlers[messageType] = append(registered[:i], registered[i+1:]...)

			break
		}
	}
}

// Connect opens the transport for the given session. It no-ops if the
// channel is already open or opening. On open it resets the attempt
// counter and issues a sync-request to reconcile state missed while
// disconnected.
func (c *Channel) Connect(ctx context.Context, sessionID, userID string) error {
	if sessionID == "" || userID == "" {
		return faults.Configuration("sessionId and userId are required")
	}

	c.mu.Lock()
	if c.state == Connected || c.state == Connecting || c.state == Reconnecting {
		c.logger.Debug("Connect ignored, channel already open or opening", "state", c.state.String())
		c.mu.Unlock()

		return nil
	}

	c.state = Connecting
	c.sessionID = sessionID
	c.userID = userID
	ws := c.newTransport(c.endpoint + c.path + sessionID)
	c.ws = ws
	c.mu.Unlock()

	ws.SetOnMessage(c.dispatch)
	ws.SetOnClosed(c.handleClosure)

	if err := c.open(ctx, ws); err != nil {
		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()

		return err
	}

	c.logger.Info("Sync channel connected", "sessionID", sessionID)

	return nil
}

// open dials the transport and performs the resync handshake. The
// channel only becomes Connected after the sync-request is on the
// wire, so no application send can precede it.
func (c *Channel) open(ctx context.Context, ws communicator.IWebSocketChannel) error {
	if err := ws.Open(ctx); err != nil {
		return faults.Transport(err)
	}

	if err := c.sendSyncRequest(ws); err != nil {
		// A transport that dialed but cannot carry the resync is
		// useless; tear it down so its listener and pings stop.
		if closeErr := ws.Close(websocket.CloseNormalClosure); closeErr != nil {
			c.logger.Warn("Error closing transport after failed resync", "error", closeErr)
		}

		return faults.Transport(err)
	}

	c.mu.Lock()
	c.state = Connected
	c.attempt = 0
	c.mu.Unlock()

	return nil
}

func (c *Channel) sendSyncRequest(ws communicator.IWebSocketChannel) error {
	c.mu.Lock()
	sessionID, userID := c.sessionID, c.userID
	c.mu.Unlock()

	envelope, err := syncmsg.New(syncmsg.TypeSyncRequest, sessionID, userID, nil)
	if err != nil {
		return err
	}

	serialized, err := envelope.Serialize()
	if err != nil {
		return err
	}

	c.logger.Debug("Requesting state resync", "sessionID", sessionID)

	if err := ws.SendMessage(serialized, websocket.TextMessage); err != nil {
		return fmt.Errorf("sending sync request: %w", err)
	}

	return nil
}

// Send transmits an envelope when the transport is open. While the
// channel is disconnected or reconnecting it is a documented no-op:
// callers must not block on delivery. Missing envelope identifiers are
// stamped from the channel's session.
func (c *Channel) Send(envelope syncmsg.Envelope) error {
	c.mu.Lock()
	if c.state != Connected {
		c.logger.Debug("Dropping outbound message, channel not connected", "state", c.state.String(), "type", envelope.Type)
		c.mu.Unlock()

		return nil
	}

	ws := c.ws

	if envelope.SessionID == "" {
		envelope.SessionID = c.sessionID
	}

	if envelope.UserID == "" {
		envelope.UserID = c.userID
	}
	c.mu.Unlock()

	serialized, err := envelope.Serialize()
	if err != nil {
		return err
	}

	if err := ws.SendMessage(serialized, websocket.TextMessage); err != nil {
		return fmt.Errorf("sending sync message: %w", err)
	}

	return nil
}

// Publish builds an envelope for the payload and sends it.
func (c *Channel) Publish(messageType syncmsg.Type, payload any) error {
	c.mu.Lock()
	sessionID, userID := c.sessionID, c.userID
	c.mu.Unlock()

	envelope, err := syncmsg.New(messageType, sessionID, userID, payload)
	if err != nil {
		return err
	}

	return c.Send(envelope)
}

// dispatch decodes one inbound message and fans it out to the handlers
// registered for its type. Malformed messages are logged and dropped
// so one bad message cannot kill the channel. Self-originated echoes
// are discarded before handler dispatch.
func (c *Channel) dispatch(raw []byte) {
	envelope, err := syncmsg.Deserialize(raw)
	if err != nil {
		c.logger.Warn("Dropping malformed sync message", "error", err)

		return
	}

	c.mu.Lock()
	localUserID := c.userID
	registered := make([]Handler, len(c.handlers[envelope.Type]))
	copy(registered, c.handlers[envelope.Type])
	c.mu.Unlock()

	if envelope.UserID == localUserID {
		c.logger.Trace("Dropping self-originated echo", "type", envelope.Type)

		return
	}

	for _, handler := range registered {
		handler(envelope)
	}
}

// handleClosure reacts to transport loss. A normal closure code means
// the far side ended the session intentionally; anything else starts
// the backoff loop, unless one is already in flight.
func (c *Channel) handleClosure(code int, err error) {
	if code == websocket.CloseNormalClosure {
		c.logger.Info("Sync transport closed normally")
		c.mu.Lock()
		c.state = Disconnected
		c.mu.Unlock()

		return
	}

	if !c.reconnecting.CompareAndSwap(false, true) {
		c.logger.Debug("Closure event ignored, reconnection already in flight", "code", code)

		return
	}

	c.logger.Warn("Sync transport lost, starting reconnection", "code", code, "error", err)

	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.state = Reconnecting
	c.attempt = 0
	c.cancelReconnect = cancel
	statusHandlers := make([]retry.StatusHandler, len(c.statusHandlers))
	copy(statusHandlers, c.statusHandlers)
	c.mu.Unlock()

	go c.runReconnect(ctx, statusHandlers)
}

// runReconnect drives one reconnection episode. Each episode is a
// fresh backoff run: counters never carry over from a previous one.
func (c *Channel) runReconnect(ctx context.Context, statusHandlers []retry.StatusHandler) {
	defer c.reconnecting.Store(false)

	reconnector := retry.NewReconnector(c.policy, c.logger)

	reconnector.Subscribe(func(status retry.Status) {
		c.mu.Lock()
		switch {
		case status.Reconnecting:
			c.attempt = status.Attempt
		case status.LastErr == nil:
			c.attempt = 0
		}
		c.mu.Unlock()
	})

	for _, handler := range statusHandlers {
		reconnector.Subscribe(handler)
	}

	reconnector.OnRecovery(func() {
		c.logger.Info("Sync channel recovered", "sessionID", c.sessionID)
	})

	err := reconnector.Run(ctx, func() error {
		return c.reopen(ctx)
	})

	switch {
	case err == nil:
		// Recovered; open already reset the state.
	case ctx.Err() != nil:
		// Torn down mid-episode; Disconnect already set the state.
		c.logger.Debug("Reconnection cancelled")
	default:
		c.logger.Error("Sync channel reconnection exhausted", "error", err)
		c.mu.Lock()
		c.state = Failed
		c.mu.Unlock()
	}
}

// reopen replaces the dead transport with a fresh one for the same
// session and redoes the resync handshake.
func (c *Channel) reopen(ctx context.Context) error {
	c.mu.Lock()
	ws := c.newTransport(c.endpoint + c.path + c.sessionID)
	c.ws = ws
	c.mu.Unlock()

	ws.SetOnMessage(c.dispatch)
	ws.SetOnClosed(c.handleClosure)

	return c.open(ctx, ws)
}

// Disconnect cancels any pending reconnection, clears attempt state,
// and closes the transport with a normal closure code so the far side
// does not treat it as a failure.
func (c *Channel) Disconnect() error {
	c.mu.Lock()
	if c.cancelReconnect != nil {
		c.cancelReconnect()
		c.cancelReconnect = nil
	}

	ws := c.ws
	c.ws = nil
	c.state = Disconnected
	c.attempt = 0
	c.mu.Unlock()

	if ws == nil {
		return nil
	}

	if err := ws.Close(websocket.CloseNormalClosure); err != nil {
		return fmt.Errorf("closing sync transport: %w", err)
	}

	return nil
}

// Reconnect is the manual escape hatch after automatic attempts are
// exhausted: a single fresh connect with reset counters.
func (c *Channel) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Connected || c.state == Connecting || c.state == Reconnecting {
		c.mu.Unlock()

		return nil
	}

	c.state = Disconnected
	sessionID, userID := c.sessionID, c.userID
	c.mu.Unlock()

	return c.Connect(ctx, sessionID, userID)
}
