package websocket

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
)

const (
	// sendBufferSize is the outbound queue per connection. A full buffer
	// means the client is lagging; frames are dropped rather than letting
	// one slow reader stall room fan-out.
	sendBufferSize = 256

	writeTimeout = 10 * time.Second
)

var errConnClosed = errors.New("connection closed")

// Client represents a single connected WebSocket client.
type Client struct {
	// ID is the unique connection identifier assigned at accept time.
	ID string

	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	// ctx scopes reads to the connection's lifetime. The HTTP request
	// context is canceled as soon as the upgrade handler returns, so the
	// pumps must not use it.
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	gateway   *Gateway
}

// Send implements rooms.Sender. It never blocks: a closed connection or a
// full buffer returns an error and the frame is dropped.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		return errors.New("send buffer full")
	}
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.done)
	})
}

// readPump pumps frames from the WebSocket connection into the gateway's
// dispatcher. It owns disconnect handling: when the read loop ends, the
// router is told and the session dies with the connection.
func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		c.gateway.router.OnDisconnect(context.Background(), c.ID)
		c.conn.Close(websocket.StatusNormalClosure, "Client disconnected")
	}()

	for {
		_, payload, err := c.conn.Read(c.ctx)
		if err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || websocket.CloseStatus(err) == websocket.StatusGoingAway {
				slog.Info("WebSocket closed normally by client", "connID", c.ID)
			} else if err != io.EOF {
				slog.Error("WebSocket read error", "connID", c.ID, "error", err)
			}
			return
		}

		c.gateway.dispatch(c.ctx, c.ID, payload)
	}
}

// writePump pumps frames from the send channel to the WebSocket connection.
func (c *Client) writePump() {
	defer func() {
		c.conn.Close(websocket.StatusNormalClosure, "Server-side cleanup")
	}()

	for {
		select {
		case payload := <-c.send:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				slog.Error("WebSocket write error", "connID", c.ID, "error", err)
				c.shutdown()
				return
			}
		case <-c.done:
			return
		}
	}
}
