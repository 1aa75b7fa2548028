package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCollector_HitRate(t *testing.T) {
	c := NewCollector()

	// No requests yet.
	assert.Equal(t, 0.0, c.HitRate())

	c.RecordHit()
	c.RecordHit()
	c.RecordHit()
	c.RecordMiss()

	assert.Equal(t, 75.0, c.HitRate())
	assert.Equal(t, int64(4), c.TotalRequests())

	snap := c.Snapshot()
	assert.Equal(t, int64(3), snap.Hits)
	assert.Equal(t, int64(1), snap.Misses)
	assert.Equal(t, int64(4), snap.Total)
	assert.Equal(t, "75.00%", snap.HitRate)
}

func TestCollector_Reset(t *testing.T) {
	c := NewCollector()
	c.RecordHit()
	c.RecordMiss()

	c.Reset()

	assert.Equal(t, int64(0), c.TotalRequests())
	assert.Equal(t, 0.0, c.HitRate())
}

func TestCollector_ConcurrentAccess(t *testing.T) {
	c := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordHit()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordMiss()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(2000), c.TotalRequests())
	assert.Equal(t, 50.0, c.HitRate())
}
