package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// FrameType discriminates websocket frames exchanged with the relay.
type FrameType string

const (
	// Client to relay.
	FrameJoin     FrameType = "join"
	FrameMessage  FrameType = "message"
	FrameProgress FrameType = "progress_update"

	// Relay to client.
	FrameSystem    FrameType = "system"
	FrameBroadcast FrameType = "broadcast"
	FrameError     FrameType = "error"
)

// Frame is one JSON object carried in one websocket text message.
// Message is either a Message object or, for relay notices, a plain string.
type Frame struct {
	ID      string          `json:"id,omitempty"`
	Type    FrameType       `json:"type"`
	Channel string          `json:"channel,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
}

// Message is the payload of a frame. A command carries Command and Params;
// a response carries Result or Error; a progress update carries Progress.
type Message struct {
	ID       string          `json:"id,omitempty"`
	Command  Command         `json:"command,omitempty"`
	Params   json.RawMessage `json:"params,omitempty"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
	Progress *Progress       `json:"progress,omitempty"`
}

// Progress reports intermediate state of a long running command.
type Progress struct {
	Status    string `json:"status"`
	Percent   int    `json:"percent"`
	Processed int    `json:"processed,omitempty"`
	Total     int    `json:"total,omitempty"`
	Message   string `json:"message,omitempty"`
}

// IsCommand reports whether the message is a command for an executor.
func (m *Message) IsCommand() bool {
	return m.Command != ""
}

// HasResult reports whether the message carries a non-null result.
func (m *Message) HasResult() bool {
	r := bytes.TrimSpace(m.Result)
	return len(r) > 0 && !bytes.Equal(r, []byte("null"))
}

// DecodeMessage decodes the frame payload. Relay notices carry a plain string
// which is returned as notice with a nil message.
func (f *Frame) DecodeMessage() (msg *Message, notice string, err error) {
	raw := bytes.TrimSpace(f.Message)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, "", nil
	}
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &notice); err != nil {
			return nil, "", fmt.Errorf("decode notice: %w", err)
		}
		return nil, notice, nil
	}
	msg = &Message{}
	if err := json.Unmarshal(raw, msg); err != nil {
		return nil, "", fmt.Errorf("decode message: %w", err)
	}
	return msg, "", nil
}

// NewCommandFrame builds the envelope for p addressed to channel and assigns
// it a fresh id. Join frames carry the target channel instead.
func NewCommandFrame(channel string, p Params) (*Frame, error) {
	params, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s params: %w", p.Command(), err)
	}
	id := uuid.NewString()
	msg, err := json.Marshal(Message{ID: id, Command: p.Command(), Params: params})
	if err != nil {
		return nil, fmt.Errorf("encode %s message: %w", p.Command(), err)
	}

	f := &Frame{ID: id, Type: FrameMessage, Channel: channel, Message: msg}
	if j, ok := p.(Join); ok {
		f.Type = FrameJoin
		f.Channel = j.Channel
	}
	return f, nil
}

const emptySuccess = `{"success":true}`

// NewResponseFrame builds the reply an executor sends for request id.
// A non-nil execErr produces an error response and result is ignored. A
// success with nothing to report is sent as emptySuccess so the requester can
// tell it apart from a frame without payload.
func NewResponseFrame(channel, id string, result any, execErr error) (*Frame, error) {
	msg := Message{ID: id}
	if execErr != nil {
		msg.Error = execErr.Error()
	} else {
		raw, err := json.Marshal(result)
		switch {
		case err != nil:
			msg.Error = fmt.Sprintf("encode result: %v", err)
		case bytes.Equal(raw, []byte("null")):
			msg.Result = json.RawMessage(emptySuccess)
		default:
			msg.Result = raw
		}
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return &Frame{ID: id, Type: FrameMessage, Channel: channel, Message: data}, nil
}

// NewProgressFrame builds a progress update for request id.
func NewProgressFrame(channel, id string, p Progress) (*Frame, error) {
	data, err := json.Marshal(Message{ID: id, Progress: &p})
	if err != nil {
		return nil, fmt.Errorf("encode progress: %w", err)
	}
	return &Frame{ID: id, Type: FrameProgress, Channel: channel, Message: data}, nil
}

// NoticeFrame builds a relay frame carrying a plain text message.
func NoticeFrame(t FrameType, channel, text string) *Frame {
	data, _ := json.Marshal(text)
	return &Frame{Type: t, Channel: channel, Message: data}
}
