package protocol

import (
	"encoding/json"
	"fmt"
)

// Frame types carried in the "type" field of every socket message
const (
	FrameJoinRoom    = "join_room"
	FrameLeaveRoom   = "leave_room"
	FrameChat        = "chat"
	FrameDeleteShape = "delete_shape"
)

// A single socket message, one JSON object per frame
type Frame struct {
	Type string `json:"type"`

	// Room the frame is scoped to
	RoomID string `json:"roomId,omitempty"`

	// Client-generated shape identifier carried on chat frames
	ClientID string `json:"clientId,omitempty"`

	// JSON string encoding {"shape": ...} on chat frames
	Message string `json:"message,omitempty"`

	// Shape identifier carried on delete_shape frames
	ID string `json:"id,omitempty"`
}

// Decodes and validates one inbound frame
func ParseFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}

	switch f.Type {
	case FrameJoinRoom, FrameLeaveRoom:
		if f.RoomID == "" {
			return nil, fmt.Errorf("%s frame missing roomId", f.Type)
		}
	case FrameChat:
		if f.RoomID == "" {
			return nil, fmt.Errorf("chat frame missing roomId")
		}
		if f.Message == "" {
			return nil, fmt.Errorf("chat frame missing message")
		}
	case FrameDeleteShape:
		if f.RoomID == "" {
			return nil, fmt.Errorf("delete_shape frame missing roomId")
		}
		if f.ID == "" {
			return nil, fmt.Errorf("delete_shape frame missing id")
		}
	default:
		return nil, fmt.Errorf("unknown frame type %q", f.Type)
	}

	return &f, nil
}

func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}
