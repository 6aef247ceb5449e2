package websocket

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/ao-agents-hackathon-band-of-the-hawk/voicecore/internal/voice"
)

// MessageType defines the type of WebSocket control message
type MessageType string

// Client-to-server control messages.
const (
	MessageTypeStart        MessageType = "start"
	MessageTypeCaptureReady MessageType = "capture_ready"
	MessageTypeCaptureError MessageType = "capture_error"
	MessageTypeClick        MessageType = "click"
	MessageTypeStop         MessageType = "stop"
	MessageTypePlaybackDone MessageType = "playback_done"
)

// Server-to-client control messages.
const (
	MessageTypePhase         MessageType = "phase"
	MessageTypeTurn          MessageType = "turn"
	MessageTypeError         MessageType = "error"
	MessageTypeSpeakingStart MessageType = "speaking_start"
	MessageTypeSpeakingStop  MessageType = "speaking_stop"
)

// ControlMessage is the JSON envelope for text frames in both
// directions. Audio travels as binary frames, never inside this
// envelope.
type ControlMessage struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id,omitempty"`
	Timestamp int64       `json:"timestamp,omitempty"`

	// capture_error and error payloads.
	Message string `json:"message,omitempty"`

	// phase payload.
	From string `json:"from,omitempty"`
	To   string `json:"to,omitempty"`

	// turn payload.
	User      string `json:"user,omitempty"`
	Assistant string `json:"assistant,omitempty"`
}

// ParseControlMessage decodes a text frame from the client.
func ParseControlMessage(data []byte) (*ControlMessage, error) {
	var msg ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON format: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("message missing type field")
	}
	switch msg.Type {
	case MessageTypeStart, MessageTypeCaptureReady, MessageTypeCaptureError,
		MessageTypeClick, MessageTypeStop, MessageTypePlaybackDone:
		return &msg, nil
	default:
		return nil, fmt.Errorf("unsupported message type: %s", msg.Type)
	}
}

// NewPhaseMessage creates the phase change notification.
func NewPhaseMessage(sessionID string, from, to voice.Phase) *ControlMessage {
	return &ControlMessage{
		Type:      MessageTypePhase,
		SessionID: sessionID,
		Timestamp: time.Now().Unix(),
		From:      string(from),
		To:        string(to),
	}
}

// NewTurnMessage creates the completed-turn notification.
func NewTurnMessage(sessionID, user, assistant string) *ControlMessage {
	return &ControlMessage{
		Type:      MessageTypeTurn,
		SessionID: sessionID,
		Timestamp: time.Now().Unix(),
		User:      user,
		Assistant: assistant,
	}
}

// NewErrorMessage creates a standardized error message.
func NewErrorMessage(sessionID, message string) *ControlMessage {
	return &ControlMessage{
		Type:      MessageTypeError,
		SessionID: sessionID,
		Timestamp: time.Now().Unix(),
		Message:   message,
	}
}

// DecodePCMFrame converts a binary frame of little-endian float32
// samples into a sample slice.
func DecodePCMFrame(data []byte) ([]float32, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty audio frame")
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("audio frame length %d is not a multiple of 4", len(data))
	}
	samples := make([]float32, len(data)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(data[i*4 : i*4+4])
		samples[i] = math.Float32frombits(bits)
	}
	return samples, nil
}
