// Package rooms is the room registry and connection router: it tracks which
// local connections belong to which rooms, publishes room events to the
// broker, and fans broker-delivered events out to the local room audience.
//
// The broker echo is the only delivery path. Join, Leave, Relay and
// OnDisconnect never hand a payload to a local connection directly (history
// replay excepted, which goes point-to-point to the joiner); everything a room
// member sees arrived through the subscription callback. That keeps delivery
// behavior identical whether a room spans one process or many.
package rooms

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nfrund/roomcast/internal/history"
	"github.com/nfrund/roomcast/internal/pubsub"
	"github.com/nfrund/roomcast/internal/session"
	"github.com/nfrund/roomcast/internal/store"
)

// Sender is the outbound port of one connection. Implementations must not
// block: a slow client is the transport layer's problem, not the router's.
type Sender interface {
	Send(payload []byte) error
}

// Router routes events between connections, rooms and the broker.
type Router struct {
	broker  pubsub.Broker
	history *history.Service
	logger  *slog.Logger

	// mu guards conns, sessions and members. Join/Leave/OnDisconnect from
	// different connections race on the shared member sets; the mutex is
	// what keeps concurrent joins to the same room from losing updates.
	mu       sync.RWMutex
	conns    map[string]Sender
	sessions map[string]*session.Session
	members  map[string]map[string]Sender // roomID -> connID -> sender

	// subMu guards the process-wide subscription set. Entries are added on
	// first join to a room and never removed; the leak is bounded by room
	// cardinality.
	subMu      sync.Mutex
	subscribed map[string]struct{}

	brokerTimeout time.Duration
}

// Option configures a Router.
type Option func(*Router)

// WithBrokerTimeout bounds every broker publish. Prevents a stalled broker
// from wedging connection handlers.
func WithBrokerTimeout(d time.Duration) Option {
	return func(r *Router) { r.brokerTimeout = d }
}

// NewRouter creates a router on top of a broker and the history service.
func NewRouter(broker pubsub.Broker, hist *history.Service, opts ...Option) *Router {
	r := &Router{
		broker:        broker,
		history:       hist,
		logger:        slog.Default().With("service", "rooms"),
		conns:         make(map[string]Sender),
		sessions:      make(map[string]*session.Session),
		members:       make(map[string]map[string]Sender),
		subscribed:    make(map[string]struct{}),
		brokerTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a freshly accepted connection with an empty session. It must
// be called before the connection's first Join.
func (r *Router) Register(connID string, sender Sender) {
	r.mu.Lock()
	r.conns[connID] = sender
	r.sessions[connID] = session.New(connID)
	r.mu.Unlock()
	r.logger.Debug("Connection registered", "connID", connID)
}

// Join adds the connection to a room. The joiner gets the recent history
// point-to-point; everyone else (the joiner included) learns about it from
// the user-joined broadcast echoed back by the broker.
func (r *Router) Join(ctx context.Context, connID, roomID, userID, username string) error {
	r.mu.Lock()
	sess, ok := r.sessions[connID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("unknown connection %s", connID)
	}
	sess.SetIdentity(userID, username)
	sess.JoinRoom(roomID)
	if r.members[roomID] == nil {
		r.members[roomID] = make(map[string]Sender)
	}
	r.members[roomID][connID] = r.conns[connID]
	sender := r.conns[connID]
	r.mu.Unlock()

	// Subscribe before publishing so the local audience can receive the
	// join broadcast. If our own echo slips through while the subscription
	// is still settling, that's a harmless race: the join event carries no
	// required side effect for the sender.
	r.ensureSubscribed(roomID)

	recent := r.history.Recent(ctx, roomID)
	if recent == nil {
		recent = []store.Message{}
	}
	if frame, err := EncodeFrame(EventMessageHistory, recent); err != nil {
		r.logger.Error("Failed to encode history frame", "roomID", roomID, "error", err)
	} else if err := sender.Send(frame); err != nil {
		r.logger.Debug("Dropped history delivery", "connID", connID, "roomID", roomID, "error", err)
	}

	r.publish(ctx, roomID, EventUserJoined, PresenceEvent{
		UserID:   userID,
		Username: username,
		RoomID:   roomID,
	})

	r.logger.Info("Connection joined room", "connID", connID, "roomID", roomID, "userID", userID)
	return nil
}

// Leave removes the connection from a room and broadcasts user-left.
func (r *Router) Leave(ctx context.Context, connID, roomID string) {
	r.mu.Lock()
	sess, ok := r.sessions[connID]
	if !ok || !sess.InRoom(roomID) {
		r.mu.Unlock()
		return
	}
	userID, username := sess.UserID, sess.Username
	sess.LeaveRoom(roomID)
	r.removeMemberLocked(roomID, connID)
	r.mu.Unlock()

	r.publish(ctx, roomID, EventUserLeft, PresenceEvent{
		UserID:   userID,
		Username: username,
		RoomID:   roomID,
	})

	r.logger.Info("Connection left room", "connID", connID, "roomID", roomID, "userID", userID)
}

// Relay publishes a room-scoped event to the broker. For receive-message the
// payload must be a store.Message; the write path (persist + cache
// invalidation) runs first, best-effort, and never blocks the broadcast.
func (r *Router) Relay(ctx context.Context, event, roomID string, payload any) {
	if event == EventReceiveMessage {
		if msg, ok := payload.(store.Message); ok {
			r.history.Record(ctx, msg)
		} else {
			r.logger.Error("receive-message relay without a message payload", "roomID", roomID)
		}
	}
	r.publish(ctx, roomID, event, payload)
}

// OnDisconnect broadcasts one user-disconnected per joined room, then
// discards the session. Disconnection is a distinct event kind from an
// explicit leave.
func (r *Router) OnDisconnect(ctx context.Context, connID string) {
	r.mu.Lock()
	sess, ok := r.sessions[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	userID, username := sess.UserID, sess.Username
	joined := sess.Rooms()
	for _, roomID := range joined {
		r.removeMemberLocked(roomID, connID)
	}
	delete(r.sessions, connID)
	delete(r.conns, connID)
	r.mu.Unlock()

	for _, roomID := range joined {
		r.publish(ctx, roomID, EventUserDisconnected, PresenceEvent{
			UserID:   userID,
			Username: username,
			RoomID:   roomID,
		})
	}

	r.logger.Info("Connection disconnected", "connID", connID, "rooms", len(joined))
}

// LocalMembers returns the connection ids currently joined to the room on
// this process. Order is unspecified.
func (r *Router) LocalMembers(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.members[roomID]))
	for connID := range r.members[roomID] {
		out = append(out, connID)
	}
	return out
}

// removeMemberLocked deletes the membership entry and prunes the room's map
// once empty. Rooms have no stored identity, so pruning is purely a memory
// optimization; the broker subscription stays.
func (r *Router) removeMemberLocked(roomID, connID string) {
	if conns, ok := r.members[roomID]; ok {
		delete(conns, connID)
		if len(conns) == 0 {
			delete(r.members, roomID)
		}
	}
}

// ensureSubscribed subscribes the process to the room's topic exactly once.
// The check-and-set holds subMu so two concurrent first-joins cannot both
// issue the subscription.
func (r *Router) ensureSubscribed(roomID string) {
	topic := Topic(roomID)

	r.subMu.Lock()
	if _, ok := r.subscribed[topic]; ok {
		r.subMu.Unlock()
		return
	}
	r.subscribed[topic] = struct{}{}
	r.subMu.Unlock()

	// The subscription outlives any single join; it is canceled only by
	// closing the broker at shutdown.
	if err := r.broker.Subscribe(context.Background(), topic, r.handleBrokerMessage); err != nil {
		r.logger.Error("Failed to subscribe to room topic", "topic", topic, "error", err)
		r.subMu.Lock()
		delete(r.subscribed, topic)
		r.subMu.Unlock()
	}
}

// handleBrokerMessage is the single delivery entry point: every event any
// local member receives comes through here, including events this process
// published itself.
func (r *Router) handleBrokerMessage(ctx context.Context, msg pubsub.Message) error {
	var env Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		r.logger.Warn("Dropping malformed broker payload", "topic", msg.Topic, "error", err)
		return nil
	}
	if env.Event == "" || env.RoomID == "" {
		r.logger.Warn("Dropping broker payload without event or room", "topic", msg.Topic)
		return nil
	}

	frame, err := json.Marshal(Frame{Event: env.Event, Payload: env.Payload})
	if err != nil {
		r.logger.Error("Failed to encode client frame", "event", env.Event, "error", err)
		return nil
	}

	r.mu.RLock()
	audience := make(map[string]Sender, len(r.members[env.RoomID]))
	for connID, sender := range r.members[env.RoomID] {
		audience[connID] = sender
	}
	r.mu.RUnlock()

	for connID, sender := range audience {
		if err := sender.Send(frame); err != nil {
			// The connection may have gone away between the snapshot and
			// the send. That's a benign drop, not an error.
			r.logger.Debug("Dropped delivery to local member",
				"connID", connID, "roomID", env.RoomID, "event", env.Event, "error", err)
		}
	}
	return nil
}

// publish sends one envelope to the room's topic. Failures are logged and
// swallowed: delivery is at-most-once and a broker outage must never
// terminate a connection.
func (r *Router) publish(ctx context.Context, roomID, event string, payload any) {
	data, err := encodeEnvelope(event, roomID, payload)
	if err != nil {
		r.logger.Error("Failed to encode broker envelope", "event", event, "roomID", roomID, "error", err)
		return
	}

	pctx, cancel := context.WithTimeout(ctx, r.brokerTimeout)
	defer cancel()

	if err := r.broker.Publish(pctx, pubsub.Message{Topic: Topic(roomID), Payload: data}); err != nil {
		r.logger.Error("Broker publish failed", "event", event, "roomID", roomID, "error", err)
	}
}
