package websocket

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/roomcast/internal/rooms"
	"github.com/nfrund/roomcast/internal/store"
)

// mockRouter records the router operations the gateway invokes. It is safe
// for concurrent use so tests can drive it from a live connection's pumps.
type mockRouter struct {
	mu          sync.Mutex
	joins       []string
	leaves      []string
	relays      []relayCall
	disconnects []string
}

type relayCall struct {
	event   string
	roomID  string
	payload any
}

func (m *mockRouter) Register(connID string, sender rooms.Sender) {}

func (m *mockRouter) Join(ctx context.Context, connID, roomID, userID, username string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joins = append(m.joins, connID+":"+roomID+":"+userID+":"+username)
	return nil
}

func (m *mockRouter) Leave(ctx context.Context, connID, roomID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves = append(m.leaves, connID+":"+roomID)
}

func (m *mockRouter) Relay(ctx context.Context, event, roomID string, payload any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relays = append(m.relays, relayCall{event: event, roomID: roomID, payload: payload})
}

func (m *mockRouter) OnDisconnect(ctx context.Context, connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects = append(m.disconnects, connID)
}

func (m *mockRouter) joinList() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.joins...)
}

func (m *mockRouter) disconnectList() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.disconnects...)
}

func TestDispatch_JoinRoom(t *testing.T) {
	router := &mockRouter{}
	g := NewGateway(router)

	g.dispatch(context.Background(), "c1",
		[]byte(`{"event":"join-room","payload":{"roomId":"general","userId":"u1","username":"alice"}}`))

	require.Len(t, router.joins, 1)
	assert.Equal(t, "c1:general:u1:alice", router.joins[0])
}

func TestDispatch_SendMessageMapsToReceiveMessage(t *testing.T) {
	router := &mockRouter{}
	g := NewGateway(router)

	g.dispatch(context.Background(), "c1",
		[]byte(`{"event":"send-message","payload":{"id":"m1","roomId":"general","userId":"u1","username":"alice","content":"hi","timestamp":1700000000000}}`))

	require.Len(t, router.relays, 1)
	assert.Equal(t, rooms.EventReceiveMessage, router.relays[0].event)
	assert.Equal(t, "general", router.relays[0].roomID)
	assert.Equal(t, store.Message{
		ID: "m1", RoomID: "general", UserID: "u1",
		Username: "alice", Content: "hi", Timestamp: 1700000000000,
	}, router.relays[0].payload)
}

func TestDispatch_TypingMapsToUserTyping(t *testing.T) {
	router := &mockRouter{}
	g := NewGateway(router)

	g.dispatch(context.Background(), "c1",
		[]byte(`{"event":"typing","payload":{"roomId":"general","username":"alice","isTyping":true}}`))

	require.Len(t, router.relays, 1)
	assert.Equal(t, rooms.EventUserTyping, router.relays[0].event)
	assert.Equal(t, rooms.TypingEvent{RoomID: "general", Username: "alice", IsTyping: true}, router.relays[0].payload)
}

func TestDispatch_LeaveRoom(t *testing.T) {
	router := &mockRouter{}
	g := NewGateway(router)

	g.dispatch(context.Background(), "c1",
		[]byte(`{"event":"leave-room","payload":{"roomId":"general","userId":"u1"}}`))

	require.Len(t, router.leaves, 1)
	assert.Equal(t, "c1:general", router.leaves[0])
}

func TestHandler_ConnectionOutlivesUpgradeHandler(t *testing.T) {
	router := &mockRouter{}
	g := NewGateway(router)

	e := echo.New()
	e.GET("/ws", g.Handler())
	srv := httptest.NewServer(e)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The upgrade handler returned long before this frame is written; the
	// pumps must keep reading on the connection's own context.
	time.Sleep(200 * time.Millisecond)

	frame := `{"event":"join-room","payload":{"roomId":"general","userId":"u1","username":"alice"}}`
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(frame)))

	assert.Eventually(t, func() bool {
		return len(router.joinList()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Contains(t, router.joinList()[0], ":general:u1:alice")
	assert.Empty(t, router.disconnectList())
}

func TestDispatch_DropsInvalidFrames(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `{nope`},
		{"unknown event", `{"event":"self-destruct","payload":{}}`},
		{"join without room", `{"event":"join-room","payload":{"userId":"u1","username":"alice"}}`},
		{"message with empty content", `{"event":"send-message","payload":{"id":"m1","roomId":"general","userId":"u1","username":"alice","content":"","timestamp":1}}`},
		{"typing without username", `{"event":"typing","payload":{"roomId":"general"}}`},
		{"payload wrong shape", `{"event":"join-room","payload":["array"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := &mockRouter{}
			g := NewGateway(router)

			assert.NotPanics(t, func() {
				g.dispatch(context.Background(), "c1", []byte(tt.frame))
			})
			assert.Empty(t, router.joins)
			assert.Empty(t, router.leaves)
			assert.Empty(t, router.relays)
		})
	}
}
