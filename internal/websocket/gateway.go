// Package websocket is the connection gateway: it upgrades HTTP requests,
// parses inbound client events, and hands them to the room router.
// Authentication happens upstream; the gateway trusts the identity fields it
// is given.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/coder/websocket"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nfrund/roomcast/internal/rooms"
	"github.com/nfrund/roomcast/internal/store"
)

// RoomRouter is the slice of the room router the gateway drives.
type RoomRouter interface {
	Register(connID string, sender rooms.Sender)
	Join(ctx context.Context, connID, roomID, userID, username string) error
	Leave(ctx context.Context, connID, roomID string)
	Relay(ctx context.Context, event, roomID string, payload any)
	OnDisconnect(ctx context.Context, connID string)
}

// Gateway manages WebSocket connections and routes inbound client events to
// the room router.
type Gateway struct {
	router   RoomRouter
	validate *validator.Validate
}

// NewGateway creates a gateway in front of the given router.
func NewGateway(router RoomRouter) *Gateway {
	return &Gateway{
		router:   router,
		validate: validator.New(),
	}
}

// Handler returns the echo handler that upgrades requests to WebSocket
// connections and registers them with the router.
func (g *Gateway) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
			InsecureSkipVerify: true, // In production, check origin.
		})
		if err != nil {
			slog.Error("Failed to upgrade connection to WebSocket", "error", err)
			return err
		}

		// The connection outlives this handler, so the pumps run on their
		// own context; the request context dies when we return.
		ctx, cancel := context.WithCancel(context.Background())
		client := &Client{
			ID:      uuid.NewString(),
			conn:    conn,
			send:    make(chan []byte, sendBufferSize),
			done:    make(chan struct{}),
			ctx:     ctx,
			cancel:  cancel,
			gateway: g,
		}
		g.router.Register(client.ID, client)
		slog.Info("WebSocket connection accepted", "connID", client.ID)

		go client.writePump()
		go client.readPump()

		return nil
	}
}

// dispatch parses one inbound frame and invokes the matching router
// operation. Malformed or unknown frames are logged and dropped; nothing a
// client sends can take the connection down.
func (g *Gateway) dispatch(ctx context.Context, connID string, raw []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		slog.Warn("Dropping malformed client frame", "connID", connID, "error", err)
		return
	}

	switch frame.Event {
	case eventJoinRoom:
		var p joinPayload
		if !g.decode(connID, frame.Event, frame.Payload, &p) {
			return
		}
		if err := g.router.Join(ctx, connID, p.RoomID, p.UserID, p.Username); err != nil {
			slog.Error("Join failed", "connID", connID, "roomID", p.RoomID, "error", err)
		}

	case eventSendMessage:
		var p sendMessagePayload
		if !g.decode(connID, frame.Event, frame.Payload, &p) {
			return
		}
		g.router.Relay(ctx, rooms.EventReceiveMessage, p.RoomID, store.Message{
			ID:        p.ID,
			RoomID:    p.RoomID,
			UserID:    p.UserID,
			Username:  p.Username,
			Content:   p.Content,
			Timestamp: p.Timestamp,
		})

	case eventTyping:
		var p typingPayload
		if !g.decode(connID, frame.Event, frame.Payload, &p) {
			return
		}
		g.router.Relay(ctx, rooms.EventUserTyping, p.RoomID, rooms.TypingEvent{
			RoomID:   p.RoomID,
			Username: p.Username,
			IsTyping: p.IsTyping,
		})

	case eventLeaveRoom:
		var p leavePayload
		if !g.decode(connID, frame.Event, frame.Payload, &p) {
			return
		}
		g.router.Leave(ctx, connID, p.RoomID)

	default:
		slog.Warn("Dropping unknown client event", "connID", connID, "event", frame.Event)
	}
}

// decode unmarshals and validates an event payload. Returns false (after
// logging) when the payload is unusable.
func (g *Gateway) decode(connID, event string, raw json.RawMessage, dest any) bool {
	if err := json.Unmarshal(raw, dest); err != nil {
		slog.Warn("Dropping client event with malformed payload",
			"connID", connID, "event", event, "error", err)
		return false
	}
	if err := g.validate.Struct(dest); err != nil {
		slog.Warn("Dropping client event with invalid payload",
			"connID", connID, "event", event, "error", err)
		return false
	}
	return true
}
