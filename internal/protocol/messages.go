// Package protocol defines the JSON messages exchanged on the tutor
// websocket.
package protocol

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeSubmit  MessageType = "submit"
	TypeSetMode MessageType = "set_mode"
	TypeReset   MessageType = "reset"

	TypeSessionReady MessageType = "session_ready"
	TypeTutorStage   MessageType = "tutor_stage"
	TypeTutorReply   MessageType = "tutor_reply"
	TypeModeChanged  MessageType = "mode_changed"
	TypeErrorEvent   MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// Submit asks the tutor to answer question. Mode and Option default to the
// session's current mode when empty.
type Submit struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	RequestID string      `json:"request_id,omitempty"`
	Question  string      `json:"question"`
	Mode      string      `json:"mode,omitempty"`
	Option    string      `json:"option,omitempty"`
}

type SetMode struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Mode      string      `json:"mode"`
	Option    string      `json:"option,omitempty"`
}

type Reset struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
}

type SessionReady struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Mode      string      `json:"mode"`
	Option    string      `json:"option,omitempty"`
}

// TutorStage reports submit progress. Progress follows the 0/50/75/100
// steps of composing, awaiting the model, splitting and synthesis.
type TutorStage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	RequestID string      `json:"request_id,omitempty"`
	Stage     string      `json:"stage"`
	Progress  int         `json:"progress"`
}

type TutorReply struct {
	Type        MessageType `json:"type"`
	SessionID   string      `json:"session_id"`
	RequestID   string      `json:"request_id,omitempty"`
	Mode        string      `json:"mode"`
	Option      string      `json:"option,omitempty"`
	Reply       string      `json:"reply"`
	Review      string      `json:"review,omitempty"`
	AudioBase64 string      `json:"audio_base64,omitempty"`
	AudioFormat string      `json:"audio_format,omitempty"`
	AudioError  string      `json:"audio_error,omitempty"`
}

type ModeChanged struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Mode      string      `json:"mode"`
	Option    string      `json:"option,omitempty"`
	Cleared   bool        `json:"history_cleared"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	RequestID string      `json:"request_id,omitempty"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes one client frame into Submit, SetMode or Reset.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeSubmit:
		var msg Submit
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || strings.TrimSpace(msg.Question) == "" {
			return nil, errors.New("invalid submit")
		}
		return msg, nil
	case TypeSetMode:
		var msg SetMode
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Mode == "" {
			return nil, errors.New("invalid set_mode")
		}
		return msg, nil
	case TypeReset:
		var msg Reset
		if err := sonic.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid reset")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// Encode marshals a server message.
func Encode(msg any) ([]byte, error) {
	return sonic.Marshal(msg)
}
