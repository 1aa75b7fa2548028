package store

// Message is an immutable chat message as persisted in the durable log.
// The ID is client-generated and unique per message; Timestamp is the
// client-supplied creation time in milliseconds.
type Message struct {
	ID        string `json:"id"`
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Reversed returns a copy of msgs in the opposite order. The store returns
// newest-first windows; joining clients receive chronological order.
func Reversed(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[len(msgs)-1-i] = m
	}
	return out
}
