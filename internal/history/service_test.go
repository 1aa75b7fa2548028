package history

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/roomcast/internal/cache"
	"github.com/nfrund/roomcast/internal/metrics"
	"github.com/nfrund/roomcast/internal/store"
)

// fakeStore implements MessageStore in memory with the same ordering and
// uniqueness contract as the SurrealDB store.
type fakeStore struct {
	mu       sync.Mutex
	messages []store.Message
	failing  bool
	reads    int
}

func (f *fakeStore) Insert(ctx context.Context, msg store.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("store unavailable")
	}
	for _, m := range f.messages {
		if m.ID == msg.ID {
			return fmt.Errorf("%w: %s", store.ErrDuplicateID, msg.ID)
		}
	}
	f.messages = append(f.messages, msg)
	return nil
}

func (f *fakeStore) Recent(ctx context.Context, roomID string, limit int) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.failing {
		return nil, errors.New("store unavailable")
	}
	var out []store.Message
	for i := len(f.messages) - 1; i >= 0 && len(out) < limit; i-- {
		if f.messages[i].RoomID == roomID {
			out = append(out, f.messages[i])
		}
	}
	return out, nil
}

func (f *fakeStore) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func newTestService(t *testing.T, fs *fakeStore) (*Service, *metrics.Collector) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.NewWithClient(client, 300*time.Second)
	t.Cleanup(func() { _ = c.Close() })

	m := metrics.NewCollector()
	return NewService(fs, c, m), m
}

func seedMessages(t *testing.T, fs *fakeStore, roomID string, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		require.NoError(t, fs.Insert(context.Background(), store.Message{
			ID:        fmt.Sprintf("m%d", i),
			RoomID:    roomID,
			UserID:    "u1",
			Username:  "alice",
			Content:   fmt.Sprintf("message %d", i),
			Timestamp: int64(i * 100),
		}))
	}
}

func TestRecent_EmptyRoom(t *testing.T) {
	svc, m := newTestService(t, &fakeStore{})

	got := svc.Recent(context.Background(), "general")

	assert.Empty(t, got)
	assert.Equal(t, int64(1), m.Snapshot().Misses)
}

func TestRecent_MissPopulatesCacheThenHits(t *testing.T) {
	fs := &fakeStore{}
	svc, m := newTestService(t, fs)
	seedMessages(t, fs, "general", 3)

	first := svc.Recent(context.Background(), "general")
	require.Len(t, first, 3)
	assert.Equal(t, 1, fs.readCount())

	second := svc.Recent(context.Background(), "general")
	assert.Equal(t, first, second)
	// Served from cache, no second store read.
	assert.Equal(t, 1, fs.readCount())

	snap := m.Snapshot()
	assert.Equal(t, int64(1), snap.Hits)
	assert.Equal(t, int64(1), snap.Misses)
}

func TestRecent_ReturnsLastFiftyChronological(t *testing.T) {
	fs := &fakeStore{}
	svc, _ := newTestService(t, fs)
	seedMessages(t, fs, "general", 60)

	got := svc.Recent(context.Background(), "general")

	require.Len(t, got, 50)
	assert.Equal(t, "m11", got[0].ID)
	assert.Equal(t, "m60", got[49].ID)
	for i := 1; i < len(got); i++ {
		assert.Less(t, got[i-1].Timestamp, got[i].Timestamp)
	}
}

func TestRecent_StoreFailureDegradesToEmpty(t *testing.T) {
	fs := &fakeStore{failing: true}
	svc, _ := newTestService(t, fs)

	got := svc.Recent(context.Background(), "general")
	assert.Empty(t, got)
}

func TestRecord_InvalidatesCache(t *testing.T) {
	fs := &fakeStore{}
	svc, _ := newTestService(t, fs)
	seedMessages(t, fs, "general", 2)

	// Warm the cache.
	require.Len(t, svc.Recent(context.Background(), "general"), 2)
	require.Equal(t, 1, fs.readCount())

	svc.Record(context.Background(), store.Message{
		ID: "m3", RoomID: "general", Content: "new", Timestamp: 300,
	})

	// The next read must not see the pre-write window: the cache entry was
	// dropped, so the store is consulted again and the new message appears.
	got := svc.Recent(context.Background(), "general")
	assert.Equal(t, 2, fs.readCount())
	require.Len(t, got, 3)
	assert.Equal(t, "m3", got[2].ID)
}

func TestRecord_DuplicateIDKeepsCacheIntact(t *testing.T) {
	fs := &fakeStore{}
	svc, _ := newTestService(t, fs)
	seedMessages(t, fs, "general", 1)

	require.Len(t, svc.Recent(context.Background(), "general"), 1)
	require.Equal(t, 1, fs.readCount())

	// Duplicate persist is a no-op; nothing changed, so the cached window
	// stays valid and serves the next read.
	svc.Record(context.Background(), store.Message{ID: "m1", RoomID: "general"})

	svc.Recent(context.Background(), "general")
	assert.Equal(t, 1, fs.readCount())
}

func TestRecord_StoreFailureDoesNotPanic(t *testing.T) {
	fs := &fakeStore{failing: true}
	svc, _ := newTestService(t, fs)

	assert.NotPanics(t, func() {
		svc.Record(context.Background(), store.Message{ID: "m1", RoomID: "general"})
	})
}
