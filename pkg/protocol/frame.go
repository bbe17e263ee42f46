// Package protocol defines the frames the chat service pushes over the
// realtime connection.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// FrameType represents the discriminant of an inbound frame
type FrameType int

const (
	FrameTypeUnknown FrameType = iota
	FrameTypeNewMessage
	FrameTypeMessageUpdate
	FrameTypeMessageDelete
	FrameTypeUnauthorized
)

// Wire names of the frame discriminants.
const (
	wireNewMessage    = "new_message"
	wireMessageUpdate = "message_update"
	wireMessageDelete = "message_delete"
	wireUnauthorized  = "unauthorized"
)

// ErrUnknownFrameType is returned by Decode for a well-formed frame whose
// discriminant this client does not know. Callers drop such frames.
var ErrUnknownFrameType = errors.New("unknown frame type")

// ErrMalformedFrame is returned by Decode when the frame cannot be parsed or
// lacks the payload its discriminant requires.
var ErrMalformedFrame = errors.New("malformed frame")

// String returns the wire name of the FrameType
func (ft FrameType) String() string {
	switch ft {
	case FrameTypeNewMessage:
		return wireNewMessage
	case FrameTypeMessageUpdate:
		return wireMessageUpdate
	case FrameTypeMessageDelete:
		return wireMessageDelete
	case FrameTypeUnauthorized:
		return wireUnauthorized
	default:
		return "unknown"
	}
}

// IsMessage reports whether the frame carries a message id.
func (ft FrameType) IsMessage() bool {
	return ft == FrameTypeNewMessage || ft == FrameTypeMessageUpdate || ft == FrameTypeMessageDelete
}

// Frame is one decoded inbound unit of the realtime connection.
type Frame struct {
	Type      FrameType
	MessageID string
	Message   string
}

// wireFrame is the JSON shape of a frame.
type wireFrame struct {
	Type      string `json:"type"`
	MessageID string `json:"messageId,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Encode encodes the frame into its JSON wire form
func (f Frame) Encode() ([]byte, error) {
	if f.Type == FrameTypeUnknown {
		return nil, fmt.Errorf("failed to encode frame: %w", ErrUnknownFrameType)
	}
	data, err := json.Marshal(wireFrame{
		Type:      f.Type.String(),
		MessageID: f.MessageID,
		Message:   f.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

// Decode decodes a JSON wire frame. The returned error wraps
// ErrUnknownFrameType or ErrMalformedFrame.
func Decode(data []byte) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return Frame{}, fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	f := Frame{
		Type:      frameTypeFromWire(w.Type),
		MessageID: w.MessageID,
		Message:   w.Message,
	}

	switch {
	case w.Type == "":
		return Frame{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	case f.Type == FrameTypeUnknown:
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownFrameType, w.Type)
	case f.Type.IsMessage() && f.MessageID == "":
		return Frame{}, fmt.Errorf("%w: %s frame without messageId", ErrMalformedFrame, f.Type)
	}

	return f, nil
}

// frameTypeFromWire converts a wire discriminant to FrameType.
// Unrecognised names map to FrameTypeUnknown so newer servers stay compatible.
func frameTypeFromWire(s string) FrameType {
	switch s {
	case wireNewMessage:
		return FrameTypeNewMessage
	case wireMessageUpdate:
		return FrameTypeMessageUpdate
	case wireMessageDelete:
		return FrameTypeMessageDelete
	case wireUnauthorized:
		return FrameTypeUnauthorized
	default:
		return FrameTypeUnknown
	}
}
