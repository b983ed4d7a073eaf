package metrics

import (
	"time"
)

// CacheSource exposes the cache counters the collector mirrors.
type CacheSource interface {
	Len() int
}

// SnapshotSource exposes the rollback counters the collector mirrors.
type SnapshotSource interface {
	Len() int
}

// Collector periodically mirrors cache and rollback state into the
// Prometheus gauges.
type Collector struct {
	cache     CacheSource
	snapshots SnapshotSource
	interval  time.Duration
	stopCh    chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(cache CacheSource, snapshots SnapshotSource) *Collector {
	return &Collector{
		cache:     cache,
		snapshots: snapshots,
		interval:  15 * time.Second,
		stopCh:    make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	if c.cache != nil {
		CacheEntries.Set(float64(c.cache.Len()))
	}
	if c.snapshots != nil {
		RollbackPoints.Set(float64(c.snapshots.Len()))
	}
}
