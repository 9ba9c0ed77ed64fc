// Package signaling implements the session-signaling backend client
// that issues short-lived join tokens.
package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/virtuclass/classkit/config"
	"github.com/virtuclass/classkit/faults"
	"github.com/virtuclass/classkit/jsonutil"
	"github.com/virtuclass/classkit/log"
	"github.com/virtuclass/classkit/version"
)

// ErrEmptyToken is returned when the backend responds without a token value.
var ErrEmptyToken = errors.New("signaling backend returned an empty token")

// JoinTokenRequest is the request envelope for a session join token.
type JoinTokenRequest struct {
	RequestID     string `json:"requestId"`
	SessionID     string `json:"sessionId"`
	UserID        string `json:"userId"`
	ClientVersion string `json:"clientVersion"`
}

// JoinToken is a short-lived credential for joining a session.
type JoinToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Client requests join tokens from the signaling backend.
type Client struct {
	httpClient *http.Client
	endpoint   string
	logger     log.T
}

// NewClient creates a signaling client for the given base endpoint.
func NewClient(endpoint string, logger log.T) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: config.TokenRequestTimeout},
		endpoint:   endpoint,
		logger:     logger.With("subsystem", "Signaling"),
	}
}

// JoinToken requests a short-lived token for joining the given session.
func (c *Client) JoinToken(ctx context.Context, sessionID, userID string) (*JoinToken, error) {
	if sessionID == "" || userID == "" {
		return nil, faults.Configuration("sessionId and userId are required")
	}

	request := JoinTokenRequest{
		RequestID:     uuid.New().String(),
		SessionID:     sessionID,
		UserID:        userID,
		ClientVersion: version.Version,
	}

	body, err := jsonutil.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("serializing token request: %w", err)
	}

	url := c.endpoint + "/api/sessions/" + sessionID + "/token"
	c.logger.Debug("Requesting join token", "sessionID", sessionID, "requestID", request.RequestID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building token request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, faults.Transport(fmt.Errorf("requesting join token: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, faults.Transport(fmt.Errorf("signaling backend returned status %d", resp.StatusCode))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, faults.Transport(fmt.Errorf("reading token response: %w", err))
	}

	var token JoinToken
	if err := json.Unmarshal(payload, &token); err != nil {
		return nil, faults.Protocol(fmt.Errorf("unmarshaling token response: %w", err))
	}

	if token.Token == "" {
		return nil, faults.Protocol(ErrEmptyToken)
	}

	return &token, nil
}
