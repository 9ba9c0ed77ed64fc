// Package syncmsg defines the sync channel message envelope.
package syncmsg

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/virtuclass/classkit/config"
	"github.com/virtuclass/classkit/faults"
	"github.com/virtuclass/classkit/jsonutil"
)

// Error messages.
var (
	ErrUnknownType      = errors.New("unknown message type")
	ErrMissingSessionID = errors.New("missing sessionId")
	ErrMissingUserID    = errors.New("missing userId")
)

// Type identifies the kind of a sync message. The set is closed.
type Type string

// Sync message types.
const (
	// TypeContentUpdate broadcasts new AI-output content.
	TypeContentUpdate Type = "content-update"
	// TypeInteractionUpdate broadcasts a participant interaction.
	TypeInteractionUpdate Type = "interaction-update"
	// TypeSyncRequest asks the backend for the authoritative state.
	TypeSyncRequest Type = "sync-request"
	// TypeSyncResponse carries the authoritative state snapshot.
	TypeSyncResponse Type = "sync-response"
	// TypeError reports a backend-side failure.
	TypeError Type = "error"
)

// Valid reports whether the type belongs to the closed set.
func (t Type) Valid() bool {
	switch t {
	case TypeContentUpdate, TypeInteractionUpdate, TypeSyncRequest, TypeSyncResponse, TypeError:
		return true
	default:
		return false
	}
}

// Envelope is the wire format for sync channel messages. Data holds
// the application payload as JSON; payloads above the compression
// threshold travel gzip compressed in CompressedData instead.
type Envelope struct {
	Type           Type            `json:"type"`
	SessionID      string          `json:"sessionId"`
	UserID         string          `json:"userId"`
	MessageID      string          `json:"messageId,omitempty"`
	SchemaVersion  string          `json:"schemaVersion,omitempty"`
	Timestamp      int64           `json:"timestamp"`
	Data           json.RawMessage `json:"data,omitempty"`
	CompressedData []byte          `json:"compressedData,omitempty"`
}

// New builds an envelope for the given payload, stamping a message ID
// and the current time. A nil payload produces an envelope without data.
func New(messageType Type, sessionID, userID string, payload any) (Envelope, error) {
	envelope := Envelope{
		Type:          messageType,
		SessionID:     sessionID,
		UserID:        userID,
		MessageID:     uuid.New().String(),
		SchemaVersion: config.MessageSchemaVersion,
		Timestamp:     time.Now().UnixMilli(),
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshaling payload: %w", err)
		}

		envelope.Data = data
	}

	return envelope, nil
}

// Validate checks the envelope against the protocol requirements.
func (e *Envelope) Validate() error {
	if !e.Type.Valid() {
		return faults.Protocol(fmt.Errorf("%w: %q", ErrUnknownType, e.Type))
	}

	if e.SessionID == "" {
		return faults.Protocol(ErrMissingSessionID)
	}

	if e.UserID == "" {
		return faults.Protocol(ErrMissingUserID)
	}

	return nil
}

// Serialize encodes the envelope for transmission, compressing the
// payload when it exceeds the threshold.
func (e *Envelope) Serialize() ([]byte, error) {
	out := *e

	if len(out.Data) > config.CompressionThreshold {
		compressed, err := compress(out.Data)
		if err != nil {
			return nil, fmt.Errorf("compressing payload: %w", err)
		}

		out.CompressedData = compressed
		out.Data = nil
	}

	serialized, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshaling envelope: %w", err)
	}

	return serialized, nil
}

// Deserialize decodes and validates an inbound envelope, decompressing
// the payload when present. Malformed input is reported as a protocol
// fault so the channel can drop the message and stay connected.
func Deserialize(input []byte) (Envelope, error) {
	var envelope Envelope

	if err := json.Unmarshal(input, &envelope); err != nil {
		return Envelope{}, faults.Protocol(fmt.Errorf("unmarshaling envelope: %w", err))
	}

	if err := envelope.Validate(); err != nil {
		return Envelope{}, err
	}

	if len(envelope.CompressedData) > 0 {
		data, err := decompress(envelope.CompressedData)
		if err != nil {
			return Envelope{}, faults.Protocol(fmt.Errorf("decompressing payload: %w", err))
		}

		envelope.Data = data
		envelope.CompressedData = nil
	}

	return envelope, nil
}

// DecodePayload unmarshals the envelope data into dest.
func (e *Envelope) DecodePayload(dest any) error {
	if len(e.Data) == 0 {
		return errors.New("envelope has no payload")
	}

	return jsonutil.Unmarshal(string(e.Data), dest)
}
