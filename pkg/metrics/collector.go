package metrics

import (
	"time"
)

// QueueStatsProvider exposes the job-queue counters the collector samples.
// pkg/queue.Queue satisfies this.
type QueueStatsProvider interface {
	StatusCounts() map[string]int
}

// PoolStatsProvider exposes the resource-pool counters the collector
// samples. pkg/pool.Registry satisfies this.
type PoolStatsProvider interface {
	StatusCounts() map[string]int
	UtilizationByPool() map[string]float64
}

// SessionStatsProvider exposes worker-session counters the collector
// samples. pkg/session.Registry satisfies this.
type SessionStatsProvider interface {
	StateCounts() map[string]int
}

// Collector periodically samples in-memory engine state into the
// Prometheus gauges registered in metrics.go, since those components hold
// no Prometheus dependency of their own.
type Collector struct {
	queue    QueueStatsProvider
	pools    PoolStatsProvider
	sessions SessionStatsProvider
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a collector over the given stats providers. Any
// provider may be nil, in which case that slice of metrics is skipped.
func NewCollector(queue QueueStatsProvider, pools PoolStatsProvider, sessions SessionStatsProvider) *Collector {
	return &Collector{
		queue:    queue,
		pools:    pools,
		sessions: sessions,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics on a background ticker.
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
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

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectQueueMetrics()
	c.collectPoolMetrics()
	c.collectSessionMetrics()
}

func (c *Collector) collectQueueMetrics() {
	if c.queue == nil {
		return
	}
	for status, count := range c.queue.StatusCounts() {
		QueueDepth.WithLabelValues(status).Set(float64(count))
	}
}

func (c *Collector) collectPoolMetrics() {
	if c.pools == nil {
		return
	}
	for status, count := range c.pools.StatusCounts() {
		PoolsTotal.WithLabelValues(status).Set(float64(count))
	}
	for poolID, ratio := range c.pools.UtilizationByPool() {
		PoolUtilizationRatio.WithLabelValues(poolID).Set(ratio)
	}
}

func (c *Collector) collectSessionMetrics() {
	if c.sessions == nil {
		return
	}
	for state, count := range c.sessions.StateCounts() {
		SessionsTotal.WithLabelValues(state).Set(float64(count))
	}
}
