package syncmsg_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/virtuclass/classkit/faults"
	"github.com/virtuclass/classkit/syncmsg"
)

const (
	testSessionID = "session-1"
	testUserID    = "user-a"
)

func TestNewEnvelope(t *testing.T) {
	t.Parallel()

	envelope, err := syncmsg.New(syncmsg.TypeContentUpdate, testSessionID, testUserID, map[string]string{"text": "hello"})
	require.NoError(t, err)

	assert.Equal(t, syncmsg.TypeContentUpdate, envelope.Type)
	assert.Equal(t, testSessionID, envelope.SessionID)
	assert.Equal(t, testUserID, envelope.UserID)
	assert.NotEmpty(t, envelope.MessageID)
	assert.NotZero(t, envelope.Timestamp)
	require.NoError(t, envelope.Validate())
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	t.Parallel()

	envelope, err := syncmsg.New(syncmsg.TypeInteractionUpdate, testSessionID, testUserID, map[string]int{"page": 3})
	require.NoError(t, err)

	wire, err := envelope.Serialize()
	require.NoError(t, err)

	decoded, err := syncmsg.Deserialize(wire)
	require.NoError(t, err)
	assert.Equal(t, envelope.MessageID, decoded.MessageID)

	var payload map[string]int

	require.NoError(t, decoded.DecodePayload(&payload))
	assert.Equal(t, 3, payload["page"])
}

func TestSerializeCompressesLargePayload(t *testing.T) {
	t.Parallel()

	snapshot := map[string]string{"state": strings.Repeat("whiteboard stroke data ", 1000)}

	envelope, err := syncmsg.New(syncmsg.TypeSyncResponse, testSessionID, testUserID, snapshot)
	require.NoError(t, err)

	wire, err := envelope.Serialize()
	require.NoError(t, err)
	assert.Less(t, len(wire), len(envelope.Data), "oversized payloads must shrink on the wire")

	decoded, err := syncmsg.Deserialize(wire)
	require.NoError(t, err)
	assert.Empty(t, decoded.CompressedData)

	var restored map[string]string

	require.NoError(t, decoded.DecodePayload(&restored))
	assert.Equal(t, snapshot, restored)
}

func TestDeserializeMalformedJSON(t *testing.T) {
	t.Parallel()

	_, err := syncmsg.Deserialize([]byte("{not json"))
	require.ErrorIs(t, err, faults.ErrProtocol)
}

func TestDeserializeUnknownType(t *testing.T) {
	t.Parallel()

	_, err := syncmsg.Deserialize([]byte(`{"type":"bogus","sessionId":"s","userId":"u","timestamp":1}`))
	require.ErrorIs(t, err, faults.ErrProtocol)
	require.ErrorIs(t, err, syncmsg.ErrUnknownType)
}

func TestDeserializeMissingIdentifiers(t *testing.T) {
	t.Parallel()

	_, err := syncmsg.Deserialize([]byte(`{"type":"content-update","userId":"u","timestamp":1}`))
	require.ErrorIs(t, err, syncmsg.ErrMissingSessionID)

	_, err = syncmsg.Deserialize([]byte(`{"type":"content-update","sessionId":"s","timestamp":1}`))
	require.ErrorIs(t, err, syncmsg.ErrMissingUserID)
}

func TestTypeValid(t *testing.T) {
	t.Parallel()

	assert.True(t, syncmsg.TypeSyncRequest.Valid())
	assert.True(t, syncmsg.TypeError.Valid())
	assert.False(t, syncmsg.Type("shutdown").Valid())
}
