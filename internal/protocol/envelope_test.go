package protocol

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCommandFrame(t *testing.T) {
	f, err := NewCommandFrame("design-1", GetNodeInfo{NodeID: "1:2"})
	require.NoError(t, err)

	assert.Equal(t, FrameMessage, f.Type)
	assert.Equal(t, "design-1", f.Channel)
	_, err = uuid.Parse(f.ID)
	require.NoError(t, err, "frame id should be a UUID")

	msg, notice, err := f.DecodeMessage()
	require.NoError(t, err)
	assert.Empty(t, notice)
	require.NotNil(t, msg)
	assert.Equal(t, f.ID, msg.ID)
	assert.Equal(t, CmdGetNodeInfo, msg.Command)
	assert.JSONEq(t, `{"nodeId":"1:2"}`, string(msg.Params))
}

func TestNewCommandFrameIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		f, err := NewCommandFrame("c", GetSelection{})
		require.NoError(t, err)
		require.False(t, seen[f.ID], "duplicate id %s", f.ID)
		seen[f.ID] = true
	}
}

func TestNewCommandFrameJoin(t *testing.T) {
	f, err := NewCommandFrame("", Join{Channel: "design-1"})
	require.NoError(t, err)
	assert.Equal(t, FrameJoin, f.Type)
	assert.Equal(t, "design-1", f.Channel)

	data, err := json.Marshal(f)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "join", wire["type"])
	assert.Equal(t, f.ID, wire["id"])
	message := wire["message"].(map[string]any)
	assert.Equal(t, "join", message["command"])
}

func TestNewResponseFrame(t *testing.T) {
	f, err := NewResponseFrame("c", "req-1", map[string]int{"selectionCount": 0}, nil)
	require.NoError(t, err)
	msg, _, err := f.DecodeMessage()
	require.NoError(t, err)
	assert.Equal(t, "req-1", msg.ID)
	assert.True(t, msg.HasResult())
	assert.JSONEq(t, `{"selectionCount":0}`, string(msg.Result))
	assert.Empty(t, msg.Error)

	f, err = NewResponseFrame("c", "req-2", nil, assert.AnError)
	require.NoError(t, err)
	msg, _, err = f.DecodeMessage()
	require.NoError(t, err)
	assert.False(t, msg.HasResult())
	assert.Equal(t, assert.AnError.Error(), msg.Error)

	var none map[string]any
	for _, result := range []any{nil, none} {
		f, err = NewResponseFrame("c", "req-3", result, nil)
		require.NoError(t, err)
		msg, _, err = f.DecodeMessage()
		require.NoError(t, err)
		assert.True(t, msg.HasResult())
		assert.JSONEq(t, `{"success":true}`, string(msg.Result))
	}
}

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		wantNotice string
		wantNil    bool
		wantResult bool
		wantErr    bool
	}{
		{name: "notice", raw: `{"type":"system","message":"Please join a channel to start chatting"}`, wantNotice: "Please join a channel to start chatting", wantNil: true},
		{name: "empty", raw: `{"type":"system"}`, wantNil: true},
		{name: "null result", raw: `{"type":"broadcast","message":{"id":"a","result":null}}`},
		{name: "false result", raw: `{"type":"broadcast","message":{"id":"a","result":false}}`, wantResult: true},
		{name: "garbage", raw: `{"type":"broadcast","message":[1,2]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f Frame
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &f))
			msg, notice, err := f.DecodeMessage()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantNotice, notice)
			if tt.wantNil {
				assert.Nil(t, msg)
				return
			}
			require.NotNil(t, msg)
			assert.Equal(t, tt.wantResult, msg.HasResult())
		})
	}
}

func TestNewProgressFrame(t *testing.T) {
	f, err := NewProgressFrame("c", "req-1", Progress{Status: "in_progress", Percent: 40})
	require.NoError(t, err)
	assert.Equal(t, FrameProgress, f.Type)

	msg, _, err := f.DecodeMessage()
	require.NoError(t, err)
	require.NotNil(t, msg.Progress)
	assert.Equal(t, 40, msg.Progress.Percent)
	assert.False(t, msg.IsCommand())
}
