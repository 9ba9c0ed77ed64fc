// Package classroom assembles the resilient connection layer for one
// virtual-classroom session: the media controller, the AI-output and
// chat sync channels, and the signaling client.
package classroom

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/virtuclass/classkit/config"
	"github.com/virtuclass/classkit/log"
	"github.com/virtuclass/classkit/media"
	"github.com/virtuclass/classkit/retry"
	"github.com/virtuclass/classkit/signaling"
	"github.com/virtuclass/classkit/syncchannel"
)

// Client owns every connection-layer instance for one session join.
// Instances are constructor-injected and explicitly torn down; nothing
// here is process-wide state.
type Client struct {
	cfg       *config.ClientConfig
	logger    log.T
	sink      StatusSink
	signaling *signaling.Client
	media     *media.Controller
	aiOutput  *syncchannel.Channel
	chat      *syncchannel.Channel

	mu        sync.Mutex
	sessionID string
	userID    string
	joined    bool
}

// NewClient wires a classroom client from the deployment config, a
// media provider, and a status sink. A nil sink defaults to LogSink.
func NewClient(cfg *config.ClientConfig, provider media.Provider, sink StatusSink, logger log.T) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if sink == nil {
		sink = NewLogSink(logger)
	}

	policy := retry.Policy{
		MaxAttempts:  cfg.Reconnect.MaxAttempts,
		InitialDelay: cfg.Reconnect.InitialDelay,
		MaxDelay:     cfg.Reconnect.MaxDelay,
		Multiplier:   cfg.Reconnect.BackoffMultiplier,
	}

	controller := media.NewController(provider, logger)
	controller.SetPolicy(policy)

	// Channels follow the same overridden schedule from a doubled
	// base delay, which keeps the stock 2000 ms channel delay under
	// default settings.
	channelPolicy := policy
	channelPolicy.InitialDelay = 2 * policy.InitialDelay

	c := &Client{
		cfg:       cfg,
		logger:    logger.With("subsystem", "ClassroomClient"),
		sink:      sink,
		signaling: signaling.NewClient(cfg.SignalingEndpoint, logger),
		media:     controller,
		aiOutput:  syncchannel.NewAIOutputChannel(cfg.SyncEndpoint, logger),
		chat:      syncchannel.NewChatChannel(cfg.SyncEndpoint, logger),
	}

	c.aiOutput.SetPolicy(channelPolicy)
	c.chat.SetPolicy(channelPolicy)

	controller.SubscribeStatus(func(status retry.Status) {
		sink.OnMediaStatus(status)

		if !status.Reconnecting && status.LastErr != nil {
			sink.OnConnectionLost()
		}
	})

	controller.SubscribeQuality(sink.OnQualityChange)

	c.aiOutput.SubscribeStatus(func(status retry.Status) {
		sink.OnChannelStatus("ai-output", status)
	})

	c.chat.SubscribeStatus(func(status retry.Status) {
		sink.OnChannelStatus("chat", status)
	})

	return c, nil
}

// Media returns the media session controller.
func (c *Client) Media() *media.Controller {
	return c.media
}

// AIOutput returns the AI-output sync channel.
func (c *Client) AIOutput() *syncchannel.Channel {
	return c.aiOutput
}

// Chat returns the chat sync channel.
func (c *Client) Chat() *syncchannel.Channel {
	return c.chat
}

// Join fetches a join token and brings up the media session and both
// sync channels. An empty userID gets a generated identifier. Joining
// twice is a no-op.
func (c *Client) Join(ctx context.Context, sessionID, userID string) error {
	c.mu.Lock()
	if c.joined {
		c.logger.Debug("Join ignored, session already joined", "sessionID", c.sessionID)
		c.mu.Unlock()

		return nil
	}

	if userID == "" {
		userID = uuid.New().String()
	}

	c.sessionID = sessionID
	c.userID = userID
	c.mu.Unlock()

	token, err := c.signaling.JoinToken(ctx, sessionID, userID)
	if err != nil {
		return fmt.Errorf("fetching join token: %w", err)
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.media.StartSession(groupCtx, media.JoinParams{
			AppID:       c.cfg.AppID,
			ChannelName: sessionID,
			Token:       token.Token,
			UID:         userID,
		})
	})

	group.Go(func() error {
		return c.aiOutput.Connect(groupCtx, sessionID, userID)
	})

	group.Go(func() error {
		return c.chat.Connect(groupCtx, sessionID, userID)
	})

	if err := group.Wait(); err != nil {
		// Partial bring-up is torn down so a retry starts clean.
		if leaveErr := c.Leave(); leaveErr != nil {
			c.logger.Warn("Error tearing down after failed join", "error", leaveErr)
		}

		return fmt.Errorf("joining session %s: %w", sessionID, err)
	}

	c.mu.Lock()
	c.joined = true
	c.mu.Unlock()

	c.logger.Info("Joined classroom session", "sessionID", sessionID, "userID", userID)

	return nil
}

// Leave tears down the media session and both sync channels. Safe to
// call more than once.
func (c *Client) Leave() error {
	c.mu.Lock()
	c.joined = false
	c.mu.Unlock()

	return errors.Join(
		c.media.StopSession(),
		c.aiOutput.Disconnect(),
		c.chat.Disconnect(),
	)
}

// ManualReconnect retries everything that is in a terminal failed
// state after exhausted automatic attempts.
func (c *Client) ManualReconnect(ctx context.Context) error {
	var errs []error

	if c.media.ConnectionLost() {
		if err := c.media.ManualReconnect(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	for _, channel := range []*syncchannel.Channel{c.aiOutput, c.chat} {
		if channel.Snapshot().State == syncchannel.Failed {
			if err := channel.Reconnect(ctx); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}
