package scheduler

import (
	"context"
	"time"

	"github.com/hodei-pipelines/orchestrator/pkg/types"
)

// WorkerCounter reports how many workers the factory currently has live
// against a pool, the only signal a single-process deployment without a
// real metrics backend has available.
type WorkerCounter interface {
	ActiveWorkers() []types.WorkerInstance
}

// PoolLookup resolves a pool's declared capacity.
type PoolLookup interface {
	FindByID(ctx context.Context, id string) (types.ResourcePool, error)
}

// WorkerCountMonitor derives a ResourceMonitor from worker counts: CPU and
// memory are modeled as one unit per worker slot, so utilization tracks
// MaxWorkers occupancy. It is a placeholder for a real per-driver metrics
// probe (cAdvisor, the Kubernetes metrics API, ...), deliberately simple
// for a single-binary deployment with no external telemetry backend wired.
type WorkerCountMonitor struct {
	workers WorkerCounter
	pools   PoolLookup
}

// NewWorkerCountMonitor builds a WorkerCountMonitor over workers and pools.
func NewWorkerCountMonitor(workers WorkerCounter, pools PoolLookup) *WorkerCountMonitor {
	return &WorkerCountMonitor{workers: workers, pools: pools}
}

// GetUtilization implements ResourceMonitor.
func (m *WorkerCountMonitor) GetUtilization(ctx context.Context, poolID string) (types.ResourcePoolUtilization, error) {
	pool, err := m.pools.FindByID(ctx, poolID)
	if err != nil {
		return types.ResourcePoolUtilization{}, err
	}

	used := 0
	for _, w := range m.workers.ActiveWorkers() {
		if w.PoolID == poolID {
			used++
		}
	}

	max := pool.MaxWorkers
	if max <= 0 {
		max = 1
	}

	return types.ResourcePoolUtilization{
		PoolID:           poolID,
		TotalCPU:         float64(max),
		UsedCPU:          float64(used),
		TotalMemoryBytes: int64(max) * 1 << 30,
		UsedMemoryBytes:  int64(used) * 1 << 30,
		RunningJobs:      used,
		SampledAt:        time.Now(),
	}, nil
}
