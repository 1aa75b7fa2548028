package pubsub

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisBridge implements the Broker interface on top of Redis Pub/Sub.
// Every server process publishes and subscribes through the same Redis
// channels, which is what gives a room a single delivery stream across
// process boundaries.
type RedisBridge struct {
	client *redis.Client

	mu   sync.Mutex
	subs []*redis.PubSub
}

// NewRedisBridge connects to Redis and verifies the connection with a ping.
// A failed ping is returned to the caller; the process must not serve
// traffic without its broker.
func NewRedisBridge(ctx context.Context, addr, password string, db int) (*RedisBridge, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis broker at %s: %w", addr, err)
	}

	return &RedisBridge{client: client}, nil
}

// Publish implements the Publisher interface. Message metadata is not carried
// over the wire; Redis Pub/Sub transports the raw payload only.
func (rb *RedisBridge) Publish(ctx context.Context, msg Message) error {
	if err := rb.client.Publish(ctx, msg.Topic, msg.Payload).Err(); err != nil {
		return fmt.Errorf("redis publish to %s failed: %w", msg.Topic, err)
	}
	return nil
}

// Subscribe implements the Subscriber interface. It blocks only until the
// SUBSCRIBE command is confirmed by the server, then consumes messages on a
// background goroutine until the context is canceled or the bridge is closed.
func (rb *RedisBridge) Subscribe(ctx context.Context, topic string, handler Handler) error {
	ps := rb.client.Subscribe(ctx, topic)

	// Receive waits for the subscription confirmation, so that a publish
	// issued after Subscribe returns is guaranteed to be delivered.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("redis subscribe to %s failed: %w", topic, err)
	}

	rb.mu.Lock()
	rb.subs = append(rb.subs, ps)
	rb.mu.Unlock()

	ch := ps.Channel()
	go func() {
		for m := range ch {
			msg := Message{
				Topic:   m.Channel,
				Payload: []byte(m.Payload),
			}
			if err := handler(ctx, msg); err != nil {
				slog.Error("Failed to handle message", "topic", m.Channel, "error", err)
			}
		}
		slog.Debug("Subscription message loop ended", "topic", topic)
	}()

	return nil
}

// Close shuts down all active subscriptions and the underlying client.
func (rb *RedisBridge) Close() error {
	rb.mu.Lock()
	subs := rb.subs
	rb.subs = nil
	rb.mu.Unlock()

	for _, ps := range subs {
		if err := ps.Close(); err != nil {
			slog.Warn("Failed to close redis subscription", "error", err)
		}
	}
	return rb.client.Close()
}
