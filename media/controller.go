package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/virtuclass/classkit/config"
	"github.com/virtuclass/classkit/faults"
	"github.com/virtuclass/classkit/log"
	"github.com/virtuclass/classkit/quality"
	"github.com/virtuclass/classkit/retry"
)

// ErrConnectionLost is the terminal state after automatic reconnection
// is exhausted; the caller surfaces a manual-retry affordance.
var ErrConnectionLost = errors.New("connection lost")

// QualityHandler observes quality tier changes, including whether a
// degradation warning or recovery notice is due for this transition.
type QualityHandler func(level quality.Level, transition quality.Transition)

// Controller owns the lifecycle of one media session: it adapts to
// measured network conditions without user action and drives full
// reconnection through the backoff engine when the transport itself
// reports loss.
type Controller struct {
	provider       Provider
	logger         log.T
	policy         retry.Policy
	sampleInterval time.Duration

	mu             sync.Mutex
	started        bool
	connectionLost bool
	params         JoinParams
	tracker        *quality.Tracker
	audioMuted     bool
	videoEnabled   bool
	lifecycle      context.Context
	stopLifecycle  context.CancelFunc

	statusHandlers  []retry.StatusHandler
	qualityHandlers []QualityHandler

	// reconnecting guards against overlapping reconnection runs.
	reconnecting *atomic.Bool
}

// NewController creates a Controller for the given provider.
func NewController(provider Provider, logger log.T) *Controller {
	c := &Controller{
		provider:       provider,
		logger:         logger.With("subsystem", "MediaController"),
		policy:         retry.DefaultPolicy(),
		sampleInterval: config.QualitySampleInterval,
		tracker:        quality.NewTracker(quality.LevelGood),
		videoEnabled:   true,
		reconnecting:   atomic.NewBool(false),
	}

	return c
}

// SetPolicy overrides the default backoff schedule. Must be called
// before StartSession.
func (c *Controller) SetPolicy(policy retry.Policy) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.policy = policy
}

// SetSampleInterval overrides the quality sampling interval. Must be
// called before StartSession.
func (c *Controller) SetSampleInterval(interval time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sampleInterval = interval
}

// SubscribeStatus registers an observer for reconnection progress.
// Engine statuses are relayed unchanged.
func (c *Controller) SubscribeStatus(handler retry.StatusHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.statusHandlers = append(c.statusHandlers, handler)
}

// SubscribeQuality registers an observer for quality tier changes.
func (c *Controller) SubscribeQuality(handler QualityHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.qualityHandlers = append(c.qualityHandlers, handler)
}

// Quality returns the externally observable quality tier.
func (c *Controller) Quality() quality.Level {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.tracker.Current()
}

// ConnectionLost reports whether automatic reconnection has been
// exhausted and a manual retry is required.
func (c *Controller) ConnectionLost() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.connectionLost
}

// StartSession opens local capture, publishes, subscribes to existing
// remote participants, and begins periodic quality sampling. Starting
// an already started session is a no-op success.
func (c *Controller) StartSession(ctx context.Context, params JoinParams) error {
	if err := params.Validate(); err != nil {
		return faults.Configuration("%s", err.Error())
	}

	c.mu.Lock()
	if c.started {
		c.logger.Debug("StartSession ignored, session already started", "channel", c.params.ChannelName)
		c.mu.Unlock()

		return nil
	}
	c.params = params
	c.mu.Unlock()

	if err := c.openSession(ctx, params); err != nil {
		return err
	}

	c.provider.OnDisconnect(c.handleTransportDisconnect)

	// The lifecycle context bounds the sampling loop and the
	// continuation of any reconnection run, so teardown cannot leave
	// zombie retries behind.
	lifecycle, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.started = true
	c.connectionLost = false
	c.lifecycle = lifecycle
	c.stopLifecycle = cancel
	c.mu.Unlock()

	go c.sampleLoop(lifecycle)

	c.logger.Info("Media session started", "channel", params.ChannelName, "uid", params.UID)

	return nil
}

// openSession is the reopen routine shared by StartSession, automatic
// reconnection, and manual reconnection.
func (c *Controller) openSession(ctx context.Context, params JoinParams) error {
	if err := c.provider.Join(ctx, params); err != nil {
		if errors.Is(err, ErrAlreadyJoined) {
			// Normalized to success; the existing connection is not
			// verified healthy here, so keep it visible in logs.
			c.logger.Warn("Provider reports session already connected, treating as success", "channel", params.ChannelName)
		} else {
			return classify(err)
		}
	}

	if err := c.provider.PublishLocalTracks(); err != nil {
		return classify(err)
	}

	for _, remoteUID := range c.provider.RemoteParticipants() {
		if err := c.provider.Subscribe(remoteUID); err != nil {
			c.logger.Warn("Failed to subscribe to remote participant", "remoteUID", remoteUID, "error", err)
		}
	}

	c.mu.Lock()
	audioMuted, videoEnabled := c.audioMuted, c.videoEnabled
	c.mu.Unlock()

	// Reapply local publish state after a rejoin.
	if audioMuted {
		if err := c.provider.SetAudioMuted(true); err != nil {
			c.logger.Warn("Failed to restore audio mute state", "error", err)
		}
	}

	if !videoEnabled {
		if err := c.provider.SetVideoEnabled(false); err != nil {
			c.logger.Warn("Failed to restore video state", "error", err)
		}
	}

	return nil
}

// classify maps provider failures onto the retry taxonomy: device
// problems need user action, everything else is transport.
func classify(err error) error {
	if errors.Is(err, ErrDeviceUnavailable) {
		return faults.Permission(err)
	}

	return faults.Transport(err)
}

// sampleLoop polls transport quality on a fixed interval until the
// session ends.
func (c *Controller) sampleLoop(ctx context.Context) {
	ticker := time.NewTicker(c.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sampleQuality()
		}
	}
}

// sampleQuality takes one quality sample and, when the tier changed,
// adapts outbound media parameters and notifies observers.
func (c *Controller) sampleQuality() {
	if c.reconnecting.Load() {
		// Quality readings are meaningless mid-reconnect.
		return
	}

	level := c.provider.TransportQuality()

	c.mu.Lock()
	transition := c.tracker.Observe(level)
	handlers := make([]QualityHandler, len(c.qualityHandlers))
	copy(handlers, c.qualityHandlers)
	c.mu.Unlock()

	if !transition.Changed {
		return
	}

	c.logger.Debug("Connection quality changed", "quality", level.String(), "warn", transition.Warn)

	if err := c.provider.SetEncoderProfile(level); err != nil {
		c.logger.Warn("Failed to adapt encoder profile", "quality", level.String(), "error", err)
	}

	for _, handler := range handlers {
		handler(level, transition)
	}
}

// ToggleAudio mutes or unmutes the local audio track. Idempotent; does
// not interfere with an in-progress reconnection.
func (c *Controller) ToggleAudio(muted bool) error {
	c.mu.Lock()
	if c.audioMuted == muted {
		c.mu.Unlock()

		return nil
	}
	c.mu.Unlock()

	if err := c.provider.SetAudioMuted(muted); err != nil {
		return fmt.Errorf("toggling audio: %w", err)
	}

	c.mu.Lock()
	c.audioMuted = muted
	c.mu.Unlock()

	return nil
}

// ToggleVideo enables or disables the local video track. Idempotent.
func (c *Controller) ToggleVideo(enabled bool) error {
	c.mu.Lock()
	if c.videoEnabled == enabled {
		c.mu.Unlock()

		return nil
	}
	c.mu.Unlock()

	if err := c.provider.SetVideoEnabled(enabled); err != nil {
		return fmt.Errorf("toggling video: %w", err)
	}

	c.mu.Lock()
	c.videoEnabled = enabled
	c.mu.Unlock()

	return nil
}

// handleTransportDisconnect is invoked by the provider's disconnect
// notification. It delegates to the backoff engine with the session's
// own reopen routine and relays engine status upward unchanged.
func (c *Controller) handleTransportDisconnect(cause error) {
	if !c.reconnecting.CompareAndSwap(false, true) {
		c.logger.Debug("Disconnect notification ignored, reconnection already in flight")

		return
	}

	c.logger.Warn("Media transport lost, starting reconnection", "error", cause)

	c.mu.Lock()
	lifecycle := c.lifecycle
	c.mu.Unlock()

	if lifecycle == nil {
		c.reconnecting.Store(false)

		return
	}

	go func() {
		defer c.reconnecting.Store(false)

		if err := c.runReconnect(lifecycle); err != nil {
			if lifecycle.Err() != nil {
				c.logger.Debug("Reconnection cancelled by teardown")

				return
			}

			c.logger.Error("Media reconnection exhausted", "error", err)
			c.mu.Lock()
			c.connectionLost = true
			c.mu.Unlock()
		}
	}()
}

// runReconnect executes one fresh reconnection run against the
// session's reopen routine.
func (c *Controller) runReconnect(ctx context.Context) error {
	c.mu.Lock()
	params := c.params
	policy := c.policy
	statusHandlers := make([]retry.StatusHandler, len(c.statusHandlers))
	copy(statusHandlers, c.statusHandlers)
	c.mu.Unlock()

	reconnector := retry.NewReconnector(policy, c.logger)
	for _, handler := range statusHandlers {
		reconnector.Subscribe(handler)
	}

	return reconnector.Run(ctx, func() error {
		return c.openSession(ctx, params)
	})
}

// ManualReconnect is the user-triggered escape hatch after automatic
// attempts are exhausted. It re-enters the reopen routine as a single
// fresh attempt sequence; counters never carry over from the exhausted
// automatic run.
func (c *Controller) ManualReconnect(ctx context.Context) error {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return nil
	}
	defer c.reconnecting.Store(false)

	err := c.runReconnect(ctx)

	c.mu.Lock()
	c.connectionLost = err != nil
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}

	return nil
}

// StopSession ends quality sampling and leaves the media session.
func (c *Controller) StopSession() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()

		return nil
	}

	c.started = false

	if c.stopLifecycle != nil {
		c.stopLifecycle()
		c.stopLifecycle = nil
	}
	c.mu.Unlock()

	if err := c.provider.Leave(); err != nil {
		return fmt.Errorf("leaving media session: %w", err)
	}

	c.logger.Info("Media session stopped")

	return nil
}
