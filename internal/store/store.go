package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nfrund/roomcast/internal/database"
	"github.com/surrealdb/surrealdb.go"
)

// ErrDuplicateID is returned by Insert when a message with the same
// client-generated id has already been persisted.
var ErrDuplicateID = errors.New("duplicate message id")

const (
	// RetentionWindow is how long messages are kept before the sweeper
	// removes them. Retention is a store concern; the router never deletes.
	RetentionWindow = 7 * 24 * time.Hour

	sweepInterval = 1 * time.Hour
)

// SurrealStore persists the append-only message log in SurrealDB.
type SurrealStore struct {
	db   *surrealdb.DB
	stop chan struct{}
}

// NewSurrealStore creates a store on an established connection.
func NewSurrealStore(db *surrealdb.DB) *SurrealStore {
	return &SurrealStore{
		db:   db,
		stop: make(chan struct{}),
	}
}

// InitSchema applies the message table definition: a unique index on the
// client-generated message id and a compound index serving the
// "recent messages for room" query.
func (s *SurrealStore) InitSchema(ctx context.Context) error {
	statements := []string{
		"DEFINE TABLE IF NOT EXISTS message SCHEMALESS",
		"DEFINE INDEX IF NOT EXISTS unique_message_id ON TABLE message COLUMNS messageId UNIQUE",
		"DEFINE INDEX IF NOT EXISTS message_room_time ON TABLE message COLUMNS roomId, timestamp",
	}
	for _, stmt := range statements {
		if err := database.Execute(ctx, s.db, stmt, nil); err != nil {
			return fmt.Errorf("failed to apply message schema: %w", err)
		}
	}
	return nil
}

// messageRecord is the persisted shape. The client-generated id lives in its
// own field so the unique index applies to it rather than the record id.
type messageRecord struct {
	MessageID string `json:"messageId"`
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// Insert appends one message to the log. A duplicate message id returns
// ErrDuplicateID; the message is never updated in place.
func (s *SurrealStore) Insert(ctx context.Context, msg Message) error {
	query := `CREATE message SET
		messageId = $messageId,
		roomId = $roomId,
		userId = $userId,
		username = $username,
		content = $content,
		timestamp = $timestamp,
		createdAt = time::now()`
	params := map[string]any{
		"messageId": msg.ID,
		"roomId":    msg.RoomID,
		"userId":    msg.UserID,
		"username":  msg.Username,
		"content":   msg.Content,
		"timestamp": msg.Timestamp,
	}

	if err := database.Execute(ctx, s.db, query, params); err != nil {
		if isUniqueIndexViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateID, msg.ID)
		}
		return fmt.Errorf("failed to persist message %s: %w", msg.ID, err)
	}
	return nil
}

// Recent returns up to limit messages for the room, newest first.
func (s *SurrealStore) Recent(ctx context.Context, roomID string, limit int) ([]Message, error) {
	query := `SELECT messageId, roomId, userId, username, content, timestamp
		FROM message WHERE roomId = $roomId ORDER BY timestamp DESC LIMIT $limit`
	params := map[string]any{
		"roomId": roomID,
		"limit":  limit,
	}

	records, err := database.Query[messageRecord](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages for room %s: %w", roomID, err)
	}

	messages := make([]Message, len(records))
	for i, r := range records {
		messages[i] = Message{
			ID:        r.MessageID,
			RoomID:    r.RoomID,
			UserID:    r.UserID,
			Username:  r.Username,
			Content:   r.Content,
			Timestamp: r.Timestamp,
		}
	}
	return messages, nil
}

// StartRetentionSweeper begins the background purge of expired messages.
// It must be run once per process; Close stops it.
func (s *SurrealStore) StartRetentionSweeper() {
	go s.sweepLoop()
}

// Close stops the retention sweeper. The database connection is owned by the
// caller and closed separately.
func (s *SurrealStore) Close() {
	close(s.stop)
}

func (s *SurrealStore) sweepLoop() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := s.purgeExpired(ctx); err != nil {
				slog.Warn("Message retention sweep failed", "error", err)
			}
			cancel()
		case <-s.stop:
			return
		}
	}
}

func (s *SurrealStore) purgeExpired(ctx context.Context) error {
	return database.Execute(ctx, s.db, "DELETE message WHERE createdAt < time::now() - 7d", nil)
}

// isUniqueIndexViolation detects the unique-index rejection SurrealDB raises
// for a duplicate messageId.
func isUniqueIndexViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already contains") || strings.Contains(msg, "unique")
}
