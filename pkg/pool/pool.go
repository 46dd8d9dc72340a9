// Package pool implements the resource-pool registry (C3): a keyed store
// over storage.ResourcePoolRepository with default-pool bootstrap and
// deterministic by-name listing. Capacity monitoring itself is delegated to
// the placement scheduler's resource-monitor collaborator (§4.3).
package pool

import (
	"context"
	"errors"
	"sync"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/ids"
	"github.com/hodei-pipelines/orchestrator/pkg/storage"
	"github.com/hodei-pipelines/orchestrator/pkg/types"
)

// Registry wraps a storage.ResourcePoolRepository, adding default-pool
// bootstrap and an in-memory utilization cache for metrics reporting.
type Registry struct {
	repo storage.ResourcePoolRepository

	mu          sync.RWMutex
	utilization map[string]types.ResourcePoolUtilization
}

// New wraps repo. Call Bootstrap once at startup to ensure the default pool
// exists.
func New(repo storage.ResourcePoolRepository) *Registry {
	return &Registry{repo: repo, utilization: make(map[string]types.ResourcePoolUtilization)}
}

// Bootstrap creates the system-wide default pool if it does not already
// exist (§3, §4.2, §8 invariant 7).
func (r *Registry) Bootstrap(ctx context.Context) error {
	_, err := r.repo.FindByName(ctx, types.DefaultPoolName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return apperr.Internal("pool.Bootstrap", err)
	}

	pool := types.ResourcePool{
		ID:         ids.Pool(),
		Name:       types.DefaultPoolName,
		Type:       "local",
		Status:     types.PoolActive,
		MaxWorkers: 10,
		System:     true,
		CreatedAt:  ids.Now(),
		UpdatedAt:  ids.Now(),
	}
	if err := r.repo.Save(ctx, pool); err != nil {
		return apperr.Internal("pool.Bootstrap", err)
	}
	return nil
}

// Save creates a new pool. Conflicts on an existing name are surfaced as-is
// (§7 propagation policy).
func (r *Registry) Save(ctx context.Context, pool types.ResourcePool) error {
	if err := r.repo.Save(ctx, pool); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return apperr.Conflict("pool.Save", "pool name already in use")
		}
		return apperr.Internal("pool.Save", err)
	}
	return nil
}

// Update saves over an existing pool; same conflict semantics as Save
// (§4.2: "conflict if another pool owns the target name").
func (r *Registry) Update(ctx context.Context, pool types.ResourcePool) error {
	return r.Save(ctx, pool)
}

// FindByID, FindByName, FindActive, FindByLabel and Exists delegate
// directly to the repository, translating not-found into apperr.
func (r *Registry) FindByID(ctx context.Context, id string) (types.ResourcePool, error) {
	p, err := r.repo.FindByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return types.ResourcePool{}, apperr.NotFound("pool.FindByID", id)
	}
	return p, err
}

func (r *Registry) FindByName(ctx context.Context, name string) (types.ResourcePool, error) {
	p, err := r.repo.FindByName(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return types.ResourcePool{}, apperr.NotFound("pool.FindByName", name)
	}
	return p, err
}

func (r *Registry) FindActive(ctx context.Context) ([]types.ResourcePool, error) {
	return r.repo.FindActive(ctx)
}

func (r *Registry) FindByLabel(ctx context.Context, key, value string) ([]types.ResourcePool, error) {
	return r.repo.FindByLabel(ctx, key, value)
}

func (r *Registry) List(ctx context.Context) ([]types.ResourcePool, error) {
	return r.repo.List(ctx)
}

func (r *Registry) Exists(ctx context.Context, id string) (bool, error) {
	return r.repo.Exists(ctx, id)
}

// Delete removes a pool; deleting the default pool fails with BusinessRule
// (§4.2, §8 invariant 7).
func (r *Registry) Delete(ctx context.Context, id string) error {
	pool, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if pool.System {
		return apperr.BusinessRule("pool.Delete", "the default pool cannot be deleted")
	}
	if err := r.repo.Delete(ctx, id); err != nil {
		return apperr.Internal("pool.Delete", err)
	}
	r.mu.Lock()
	delete(r.utilization, id)
	r.mu.Unlock()
	return nil
}

// RecordUtilization caches the most recent utilization sample for a pool
// and exposes it back out through UtilizationByPool for metrics
// collection. The placement scheduler's probes do not call it.
func (r *Registry) RecordUtilization(u types.ResourcePoolUtilization) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.utilization[u.PoolID] = u
}

// StatusCounts implements metrics.PoolStatsProvider.
func (r *Registry) StatusCounts() map[string]int {
	pools, err := r.repo.List(context.Background())
	if err != nil {
		return map[string]int{}
	}
	counts := make(map[string]int)
	for _, p := range pools {
		counts[string(p.Status)]++
	}
	return counts
}

// UtilizationByPool implements metrics.PoolStatsProvider, reporting the
// last-recorded load ratio (§3 ResourcePoolUtilization.Load) per pool.
func (r *Registry) UtilizationByPool() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]float64, len(r.utilization))
	for id, u := range r.utilization {
		out[id] = u.Load()
	}
	return out
}
