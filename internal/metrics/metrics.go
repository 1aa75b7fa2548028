// Package metrics tracks cache effectiveness for the history read path.
package metrics

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Snapshot is a point-in-time view of the collector, shaped for the
// read-only stats endpoint.
type Snapshot struct {
	Hits    int64  `json:"hits"`
	Misses  int64  `json:"misses"`
	Total   int64  `json:"total"`
	HitRate string `json:"hitRate"`
	Uptime  string `json:"uptime"`
}

// Collector counts cache hits and misses for the lifetime of the process.
// All methods are safe for concurrent use.
type Collector struct {
	mu        sync.Mutex
	hits      int64
	misses    int64
	startTime time.Time
}

// NewCollector creates a collector with its uptime clock started.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// RecordHit counts a cache hit.
func (c *Collector) RecordHit() {
	c.mu.Lock()
	c.hits++
	c.logStatsLocked()
	c.mu.Unlock()
}

// RecordMiss counts a cache miss.
func (c *Collector) RecordMiss() {
	c.mu.Lock()
	c.misses++
	c.logStatsLocked()
	c.mu.Unlock()
}

// HitRate returns the percentage of requests served from cache.
func (c *Collector) HitRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hitRateLocked()
}

// TotalRequests returns the number of recorded lookups.
func (c *Collector) TotalRequests() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits + c.misses
}

// Snapshot returns the current counters.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Reset zeroes the counters and restarts the uptime clock.
func (c *Collector) Reset() {
	c.mu.Lock()
	c.hits = 0
	c.misses = 0
	c.startTime = time.Now()
	c.mu.Unlock()
}

func (c *Collector) hitRateLocked() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total) * 100
}

func (c *Collector) snapshotLocked() Snapshot {
	uptime := int64(time.Since(c.startTime).Seconds())
	return Snapshot{
		Hits:    c.hits,
		Misses:  c.misses,
		Total:   c.hits + c.misses,
		HitRate: fmt.Sprintf("%.2f%%", c.hitRateLocked()),
		Uptime:  fmt.Sprintf("%ds", uptime),
	}
}

// logStatsLocked emits a stats line every 10 recorded requests to keep log
// volume bounded under load.
func (c *Collector) logStatsLocked() {
	total := c.hits + c.misses
	if total%10 == 0 {
		snap := c.snapshotLocked()
		slog.Info("Cache stats",
			"hits", snap.Hits,
			"misses", snap.Misses,
			"total", snap.Total,
			"hit_rate", snap.HitRate,
			"uptime", snap.Uptime,
		)
	}
}
