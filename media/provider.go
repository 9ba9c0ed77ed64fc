// Package media implements the adaptive media session controller.
package media

import (
	"context"
	"errors"

	"github.com/virtuclass/classkit/quality"
)

// Provider-reported conditions the controller must recognize.
var (
	// ErrAlreadyJoined is returned by a provider when the session is
	// logically already connected. The controller treats it as a
	// no-op success.
	ErrAlreadyJoined = errors.New("already joined")

	// ErrDeviceUnavailable is returned by a provider when a capture
	// device is denied or unavailable.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
)

// JoinParams identifies one media session with the conferencing provider.
type JoinParams struct {
	// AppID identifies the application with the provider.
	AppID string
	// ChannelName is the logical room.
	ChannelName string
	// Token is the short-lived join token from the signaling backend.
	Token string
	// UID is the local participant identifier.
	UID string
}

// Validate checks that all required identifiers are present.
func (p JoinParams) Validate() error {
	switch {
	case p.AppID == "":
		return errors.New("appId is required")
	case p.ChannelName == "":
		return errors.New("channel name is required")
	case p.Token == "":
		return errors.New("token is required")
	case p.UID == "":
		return errors.New("uid is required")
	default:
		return nil
	}
}

// Provider is the narrow contract against the external media
// conferencing SDK. The controller never inspects provider-internal
// objects beyond these calls.
type Provider interface {
	// Join opens the media session.
	Join(ctx context.Context, params JoinParams) error
	// Leave closes the media session.
	Leave() error
	// PublishLocalTracks starts publishing local capture.
	PublishLocalTracks() error
	// Subscribe attaches to a remote participant's tracks.
	Subscribe(remoteUID string) error
	// RemoteParticipants lists participants already in the session.
	RemoteParticipants() []string
	// SetAudioMuted mutes or unmutes the local audio track.
	SetAudioMuted(muted bool) error
	// SetVideoEnabled enables or disables the local video track.
	SetVideoEnabled(enabled bool) error
	// SetEncoderProfile adjusts outbound media parameters to a quality tier.
	SetEncoderProfile(level quality.Level) error
	// TransportQuality samples the current transport quality.
	TransportQuality() quality.Level
	// OnDisconnect registers the transport loss notification callback.
	OnDisconnect(handler func(err error))
}
