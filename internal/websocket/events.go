package websocket

import "encoding/json"

// Inbound event names accepted from clients. The outbound names they map to
// live in the rooms package.
const (
	eventJoinRoom    = "join-room"
	eventSendMessage = "send-message"
	eventTyping      = "typing"
	eventLeaveRoom   = "leave-room"
)

// inboundFrame is the envelope every client frame arrives in.
type inboundFrame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	RoomID   string `json:"roomId" validate:"required"`
	UserID   string `json:"userId" validate:"required"`
	Username string `json:"username" validate:"required"`
}

type sendMessagePayload struct {
	ID        string `json:"id" validate:"required"`
	RoomID    string `json:"roomId" validate:"required"`
	UserID    string `json:"userId" validate:"required"`
	Username  string `json:"username" validate:"required"`
	Content   string `json:"content" validate:"required"`
	Timestamp int64  `json:"timestamp" validate:"required"`
}

type typingPayload struct {
	RoomID   string `json:"roomId" validate:"required"`
	Username string `json:"username" validate:"required"`
	IsTyping bool   `json:"isTyping"`
}

type leavePayload struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId"`
}
