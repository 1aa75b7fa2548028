// Package history implements the read and write paths for recent room
// messages: cache-aside reads in front of the durable log, and
// persist-then-invalidate writes.
package history

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nfrund/roomcast/internal/metrics"
	"github.com/nfrund/roomcast/internal/store"
)

// MessageStore is the slice of the durable log the history paths need.
type MessageStore interface {
	Insert(ctx context.Context, msg store.Message) error
	Recent(ctx context.Context, roomID string, limit int) ([]store.Message, error)
}

// MessageCache is the slice of the cache layer the history paths need.
type MessageCache interface {
	GetMessages(ctx context.Context, roomID string) ([]store.Message, bool, error)
	SetMessages(ctx context.Context, roomID string, messages []store.Message) error
	Invalidate(ctx context.Context, roomID string) error
}

// Service coordinates cache and store. Both paths are best-effort: a dead
// cache or store degrades history, it never blocks a join or a relay.
type Service struct {
	store   MessageStore
	cache   MessageCache
	metrics *metrics.Collector
	logger  *slog.Logger

	limit        int
	cacheTimeout time.Duration
	storeTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithLimit overrides the size of the recent-message window.
func WithLimit(n int) Option {
	return func(s *Service) { s.limit = n }
}

// WithTimeouts overrides the per-call deadlines for cache and store access.
func WithTimeouts(cache, store time.Duration) Option {
	return func(s *Service) {
		s.cacheTimeout = cache
		s.storeTimeout = store
	}
}

// NewService creates the history service with the provided dependencies.
func NewService(st MessageStore, c MessageCache, m *metrics.Collector, opts ...Option) *Service {
	svc := &Service{
		store:        st,
		cache:        c,
		metrics:      m,
		logger:       slog.Default().With("service", "history"),
		limit:        50,
		cacheTimeout: 2 * time.Second,
		storeTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Recent returns the most recent window of messages for a room in
// chronological order (oldest first). It never returns an error: any cache
// or store failure is logged and reported as an empty history so the join
// can proceed.
func (s *Service) Recent(ctx context.Context, roomID string) []store.Message {
	cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	cached, found, err := s.cache.GetMessages(cctx, roomID)
	cancel()
	if err != nil {
		s.logger.Warn("History cache read failed, serving empty history",
			"roomID", roomID, "error", err)
		return nil
	}
	if found {
		s.metrics.RecordHit()
		return store.Reversed(cached)
	}

	s.metrics.RecordMiss()

	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	recent, err := s.store.Recent(sctx, roomID, s.limit)
	cancel()
	if err != nil {
		s.logger.Warn("History store read failed, serving empty history",
			"roomID", roomID, "error", err)
		return nil
	}

	// Populate the cache with the newest-first window. A failed set only
	// costs the next reader a store round-trip.
	cctx, cancel = context.WithTimeout(ctx, s.cacheTimeout)
	if err := s.cache.SetMessages(cctx, roomID, recent); err != nil {
		s.logger.Warn("Failed to populate history cache", "roomID", roomID, "error", err)
	}
	cancel()

	return store.Reversed(recent)
}

// Record persists a message and invalidates the room's cache entry. All
// failure modes are logged and swallowed: durability is best-effort and must
// never block live delivery. A duplicate message id is a no-op.
func (s *Service) Record(ctx context.Context, msg store.Message) {
	sctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	err := s.store.Insert(sctx, msg)
	cancel()
	if err != nil {
		if errors.Is(err, store.ErrDuplicateID) {
			s.logger.Info("Dropping duplicate message", "messageID", msg.ID, "roomID", msg.RoomID)
		} else {
			s.logger.Warn("Failed to persist message",
				"messageID", msg.ID, "roomID", msg.RoomID, "error", err)
		}
		return
	}

	cctx, cancel := context.WithTimeout(ctx, s.cacheTimeout)
	if err := s.cache.Invalidate(cctx, msg.RoomID); err != nil {
		s.logger.Warn("Failed to invalidate history cache after write",
			"roomID", msg.RoomID, "error", err)
	}
	cancel()
}
