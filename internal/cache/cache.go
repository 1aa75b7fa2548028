// Package cache provides the Redis-backed read accelerator in front of the
// durable message log. Entries hold the most recent window of messages per
// room and expire on their own; writes to a room invalidate its entry.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nfrund/roomcast/internal/store"
)

// MessageKey returns the cache key holding the latest message window for a room.
func MessageKey(roomID string) string {
	return fmt.Sprintf("messages:%s:latest", roomID)
}

// Cache wraps a Redis client for message-window storage.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies the connection with a ping. The cache
// shares failure semantics with the broker: unreachable at boot is fatal to
// the caller, unreachable in steady state degrades to store reads.
func New(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis cache at %s: %w", addr, err)
	}

	return &Cache{client: client, ttl: ttl}, nil
}

// NewWithClient wraps an existing client. Used by tests and by callers that
// manage the client's lifecycle themselves.
func NewWithClient(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// GetMessages fetches the cached window for a room. The second return value
// reports whether the entry was present (a cache hit).
func (c *Cache) GetMessages(ctx context.Context, roomID string) ([]store.Message, bool, error) {
	data, err := c.client.Get(ctx, MessageKey(roomID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("cache get for room %s failed: %w", roomID, err)
	}

	var messages []store.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, false, fmt.Errorf("cache entry for room %s is corrupt: %w", roomID, err)
	}
	return messages, true, nil
}

// SetMessages stores the window for a room with the configured TTL.
func (c *Cache) SetMessages(ctx context.Context, roomID string, messages []store.Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("failed to marshal message window for room %s: %w", roomID, err)
	}

	if err := c.client.Set(ctx, MessageKey(roomID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set for room %s failed: %w", roomID, err)
	}
	return nil
}

// Invalidate drops the room's entry. Deleting an absent key is a no-op,
// which keeps invalidation idempotent.
func (c *Cache) Invalidate(ctx context.Context, roomID string) error {
	if err := c.client.Del(ctx, MessageKey(roomID)).Err(); err != nil {
		return fmt.Errorf("cache invalidation for room %s failed: %w", roomID, err)
	}
	return nil
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}
