// Package session holds the per-connection ephemeral state: who the
// connection is, and which rooms it has joined.
package session

// Session is owned exclusively by its connection. It is created empty at
// connect time, mutated only by handlers processing that connection's events
// (the room registry serializes those mutations), and discarded on disconnect.
type Session struct {
	ConnID   string
	UserID   string
	Username string

	rooms map[string]struct{}
}

// New creates an empty session for a freshly accepted connection.
func New(connID string) *Session {
	return &Session{
		ConnID: connID,
		rooms:  make(map[string]struct{}),
	}
}

// SetIdentity records the user identity. A connection carries one logical
// identity for its lifetime; a re-join with a different identity overwrites
// it, which is accepted client behavior.
func (s *Session) SetIdentity(userID, username string) {
	s.UserID = userID
	s.Username = username
}

// JoinRoom records membership in a room.
func (s *Session) JoinRoom(roomID string) {
	s.rooms[roomID] = struct{}{}
}

// LeaveRoom removes membership in a room. Leaving a room the session never
// joined is a no-op.
func (s *Session) LeaveRoom(roomID string) {
	delete(s.rooms, roomID)
}

// InRoom reports whether the session is currently joined to the room.
func (s *Session) InRoom(roomID string) bool {
	_, ok := s.rooms[roomID]
	return ok
}

// Rooms returns the ids of all rooms the session is joined to. Order is
// unspecified.
func (s *Session) Rooms() []string {
	out := make([]string, 0, len(s.rooms))
	for id := range s.rooms {
		out = append(out, id)
	}
	return out
}
