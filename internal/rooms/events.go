package rooms

import (
	"encoding/json"
	"fmt"
)

// Event names broadcast to room members. These are the outbound halves of
// the client protocol; the websocket gateway owns the inbound names.
const (
	EventUserJoined       = "user-joined"
	EventUserLeft         = "user-left"
	EventUserDisconnected = "user-disconnected"
	EventReceiveMessage   = "receive-message"
	EventUserTyping       = "user-typing"
	EventMessageHistory   = "message-history"
)

// Topic returns the broker topic carrying all events for a room. The mapping
// is deterministic and one-to-one; the room has no other stored identity.
func Topic(roomID string) string {
	return "room:" + roomID
}

// Envelope is the broker wire format. Every room event crosses the broker in
// this shape, whichever process it originated on.
type Envelope struct {
	Event   string          `json:"event"`
	RoomID  string          `json:"roomId"`
	Payload json.RawMessage `json:"payload"`
}

// PresenceEvent is the payload for user-joined, user-left and
// user-disconnected broadcasts.
type PresenceEvent struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	RoomID   string `json:"roomId"`
}

// TypingEvent is the payload for user-typing broadcasts.
type TypingEvent struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	IsTyping bool   `json:"isTyping"`
}

// Frame is the envelope delivered to connected clients.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeFrame builds the client-facing frame for an event.
func EncodeFrame(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	frame, err := json.Marshal(Frame{Event: event, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s frame: %w", event, err)
	}
	return frame, nil
}

func encodeEnvelope(event, roomID string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	env, err := json.Marshal(Envelope{Event: event, RoomID: roomID, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s envelope: %w", event, err)
	}
	return env, nil
}
