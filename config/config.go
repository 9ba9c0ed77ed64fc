// Package config provides configuration constants and settings for the client.
package config

import "time"

const (
	// MessageSchemaVersion defines the version of the sync message schema.
	MessageSchemaVersion = "1.0"
	// DefaultMaxReconnectAttempts is the number of reconnection attempts before giving up.
	DefaultMaxReconnectAttempts = 5
	// DefaultReconnectInitialDelay is the delay before the first reconnection retry.
	DefaultReconnectInitialDelay = 1000 * time.Millisecond
	// DefaultReconnectMaxDelay caps the delay between reconnection retries.
	DefaultReconnectMaxDelay = 30000 * time.Millisecond
	// DefaultBackoffMultiplier is the geometric growth factor for retry delays.
	DefaultBackoffMultiplier = 2
	// ChannelReconnectBaseDelay is the initial retry delay for sync channels.
	ChannelReconnectBaseDelay = 2000 * time.Millisecond
	// ChannelMaxReconnectAttempts is the retry bound for sync channels.
	ChannelMaxReconnectAttempts = 5
	// QualitySampleInterval is the interval between media quality samples.
	QualitySampleInterval = 3000 * time.Millisecond
	// PingTimeInterval is the interval between keepalive pings on a sync transport.
	PingTimeInterval = 30 * time.Second
	// CompressionThreshold is the payload size in bytes above which sync
	// message data is gzip compressed before transmission.
	CompressionThreshold = 4096
	// AIOutputChannelPath is the URL path prefix for the AI-output sync channel.
	AIOutputChannelPath = "/ws/ai-output/"
	// ChatChannelPath is the URL path prefix for the chat sync channel.
	ChatChannelPath = "/ws/chat/"
	// HandshakeTimeout bounds the websocket dial for sync channels.
	HandshakeTimeout = 10 * time.Second
	// TokenRequestTimeout bounds a join-token request against the signaling backend.
	TokenRequestTimeout = 10 * time.Second
)
