package gateway

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest_EncodesParams(t *testing.T) {
	frame, err := NewRequest("req-1", "chat.send", map[string]string{"message": "/agents list"})
	require.NoError(t, err)

	assert.Equal(t, FrameTypeRequest, frame.Type)
	assert.Equal(t, "chat.send", frame.Method)
	assert.JSONEq(t, `{"message":"/agents list"}`, string(frame.Params))
}

func TestNewResponse(t *testing.T) {
	frame, err := NewResponse("req-1", map[string]int{"count": 2})
	require.NoError(t, err)

	require.NotNil(t, frame.OK)
	assert.True(t, *frame.OK)
	assert.Nil(t, frame.Error)
	assert.JSONEq(t, `{"count":2}`, string(frame.Payload))
}

func TestNewErrorResponse(t *testing.T) {
	frame := NewErrorResponse("req-9", ErrorShape{Code: CodeForbidden, Message: "denied"})

	data, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"res","id":"req-9","ok":false,"error":{"code":"forbidden","message":"denied"}}`, string(data))
}

func TestNewEvent(t *testing.T) {
	frame, err := NewEvent(EventTranscriptMessage, map[string]any{"id": 1}, 7)
	require.NoError(t, err)

	assert.Equal(t, FrameTypeEvent, frame.Type)
	assert.Equal(t, "transcript.message", frame.Event)
	assert.Equal(t, int64(7), frame.Seq)
	assert.Empty(t, frame.ID)
}

func TestNewEvent_ZeroSeqOmitted(t *testing.T) {
	frame, err := NewEvent(EventChallenge, nil, 0)
	require.NoError(t, err)

	data, err := json.Marshal(frame)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"seq"`)
}

func TestConnectParams_OmitsNilAuth(t *testing.T) {
	data, err := json.Marshal(ConnectParams{
		MinProtocol: 1,
		MaxProtocol: 1,
		Client:      ClientInfo{ID: "ui", Version: "1.0.0", Platform: "linux", Mode: "ui"},
	})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"auth"`)
}

func TestErrorShape_OmitsEmpty(t *testing.T) {
	data, err := json.Marshal(ErrorShape{Code: CodeInvalidParams, Message: "missing params"})
	require.NoError(t, err)

	raw := string(data)
	assert.NotContains(t, raw, "details")
	assert.NotContains(t, raw, "retryable")
	assert.NotContains(t, raw, "retryAfterMs")
}
