package scheduler

import (
	"context"
	"testing"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/ids"
	"github.com/hodei-pipelines/orchestrator/pkg/storage"
	"github.com/hodei-pipelines/orchestrator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMonitor struct {
	byPool map[string]types.ResourcePoolUtilization
	err    map[string]error
}

func (m *fakeMonitor) GetUtilization(ctx context.Context, poolID string) (types.ResourcePoolUtilization, error) {
	if err, ok := m.err[poolID]; ok {
		return types.ResourcePoolUtilization{}, err
	}
	return m.byPool[poolID], nil
}

func newTestPools(t *testing.T, pools ...types.ResourcePool) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore()
	ctx := context.Background()
	for _, p := range pools {
		require.NoError(t, store.ResourcePools().Save(ctx, p))
	}
	return store
}

func TestFindPlacementNoActivePools(t *testing.T) {
	store := storage.NewMemoryStore()
	s := New(store.ResourcePools(), map[string]ResourceMonitor{}, LeastLoaded)

	_, err := s.FindPlacement(context.Background(), types.Job{ID: ids.Job()}, types.ResourceRequirements{CPU: 1}, "")
	require.Error(t, err)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindProvisioning, kind)
}

func TestFindPlacementLeastLoaded(t *testing.T) {
	// Scenario 5 (§8): P1 (cpu 8, used 2), P2 (cpu 8, used 7); job needs
	// cpu=2; leastloaded picks P1 (load 0.25 < 0.875).
	p1 := types.ResourcePool{ID: "p1", Name: "p1", Type: "local", Status: types.PoolActive}
	p2 := types.ResourcePool{ID: "p2", Name: "p2", Type: "local", Status: types.PoolActive}
	store := newTestPools(t, p1, p2)

	monitor := &fakeMonitor{byPool: map[string]types.ResourcePoolUtilization{
		"p1": {PoolID: "p1", TotalCPU: 8, UsedCPU: 2, TotalMemoryBytes: 1 << 30},
		"p2": {PoolID: "p2", TotalCPU: 8, UsedCPU: 7, TotalMemoryBytes: 1 << 30},
	}}
	s := New(store.ResourcePools(), map[string]ResourceMonitor{"local": monitor}, LeastLoaded)

	result, err := s.FindPlacement(context.Background(), types.Job{ID: ids.Job()}, types.ResourceRequirements{CPU: 2}, "")
	require.NoError(t, err)
	assert.Equal(t, "p1", result.Pool.ID)
}

func TestFindPlacementGreedyBestFit(t *testing.T) {
	p1 := types.ResourcePool{ID: "p1", Name: "p1", Type: "local", Status: types.PoolActive}
	p2 := types.ResourcePool{ID: "p2", Name: "p2", Type: "local", Status: types.PoolActive}
	store := newTestPools(t, p1, p2)

	monitor := &fakeMonitor{byPool: map[string]types.ResourcePoolUtilization{
		"p1": {PoolID: "p1", TotalCPU: 16, UsedCPU: 0, TotalMemoryBytes: 1 << 34},
		"p2": {PoolID: "p2", TotalCPU: 4, UsedCPU: 1, TotalMemoryBytes: 1 << 30},
	}}
	s := New(store.ResourcePools(), map[string]ResourceMonitor{"local": monitor}, Greedy)

	result, err := s.FindPlacement(context.Background(), types.Job{ID: ids.Job()}, types.ResourceRequirements{CPU: 1}, "greedy")
	require.NoError(t, err)
	assert.Equal(t, "p2", result.Pool.ID, "greedy should prefer the pool with the least free capacity that still fits")
}

func TestFindPlacementBinPackingPicksFirstByName(t *testing.T) {
	p1 := types.ResourcePool{ID: "p-zeta", Name: "zeta", Type: "local", Status: types.PoolActive}
	p2 := types.ResourcePool{ID: "p-alpha", Name: "alpha", Type: "local", Status: types.PoolActive}
	store := newTestPools(t, p1, p2)

	monitor := &fakeMonitor{byPool: map[string]types.ResourcePoolUtilization{
		"p-zeta":  {PoolID: "p-zeta", TotalCPU: 8, TotalMemoryBytes: 1 << 30},
		"p-alpha": {PoolID: "p-alpha", TotalCPU: 8, TotalMemoryBytes: 1 << 30},
	}}
	s := New(store.ResourcePools(), map[string]ResourceMonitor{"local": monitor}, BinPacking)

	result, err := s.FindPlacement(context.Background(), types.Job{ID: ids.Job()}, types.ResourceRequirements{CPU: 1}, "binpacking")
	require.NoError(t, err)
	assert.Equal(t, "p-alpha", result.Pool.ID)
}

func TestFindPlacementRoundRobinCursorAdvances(t *testing.T) {
	p1 := types.ResourcePool{ID: "p1", Name: "a", Type: "local", Status: types.PoolActive}
	p2 := types.ResourcePool{ID: "p2", Name: "b", Type: "local", Status: types.PoolActive}
	store := newTestPools(t, p1, p2)

	monitor := &fakeMonitor{byPool: map[string]types.ResourcePoolUtilization{
		"p1": {PoolID: "p1", TotalCPU: 8, TotalMemoryBytes: 1 << 30},
		"p2": {PoolID: "p2", TotalCPU: 8, TotalMemoryBytes: 1 << 30},
	}}
	s := New(store.ResourcePools(), map[string]ResourceMonitor{"local": monitor}, RoundRobin)

	first, err := s.FindPlacement(context.Background(), types.Job{ID: ids.Job()}, types.ResourceRequirements{CPU: 1}, "roundrobin")
	require.NoError(t, err)
	second, err := s.FindPlacement(context.Background(), types.Job{ID: ids.Job()}, types.ResourceRequirements{CPU: 1}, "roundrobin")
	require.NoError(t, err)
	assert.NotEqual(t, first.Pool.ID, second.Pool.ID)
}

func TestFindPlacementRoundRobinIdempotentForSingleCandidate(t *testing.T) {
	p1 := types.ResourcePool{ID: "p1", Name: "a", Type: "local", Status: types.PoolActive}
	store := newTestPools(t, p1)
	monitor := &fakeMonitor{byPool: map[string]types.ResourcePoolUtilization{
		"p1": {PoolID: "p1", TotalCPU: 8, TotalMemoryBytes: 1 << 30},
	}}
	s := New(store.ResourcePools(), map[string]ResourceMonitor{"local": monitor}, RoundRobin)

	for i := 0; i < 3; i++ {
		result, err := s.FindPlacement(context.Background(), types.Job{ID: ids.Job()}, types.ResourceRequirements{CPU: 1}, "roundrobin")
		require.NoError(t, err)
		assert.Equal(t, "p1", result.Pool.ID)
	}
}

func TestFindPlacementInsufficientCapacity(t *testing.T) {
	p1 := types.ResourcePool{ID: "p1", Name: "a", Type: "local", Status: types.PoolActive}
	store := newTestPools(t, p1)
	monitor := &fakeMonitor{byPool: map[string]types.ResourcePoolUtilization{
		"p1": {PoolID: "p1", TotalCPU: 1, UsedCPU: 1, TotalMemoryBytes: 1 << 30},
	}}
	s := New(store.ResourcePools(), map[string]ResourceMonitor{"local": monitor}, LeastLoaded)

	_, err := s.FindPlacement(context.Background(), types.Job{ID: ids.Job()}, types.ResourceRequirements{CPU: 2}, "")
	require.Error(t, err)
	appErr, ok := err.(*apperr.Error)
	require.True(t, ok)
	assert.Equal(t, apperr.ProvInsufficientCapacity, appErr.Subkind)
}

func TestFindPlacementSkipsPoolsWithFailedProbe(t *testing.T) {
	p1 := types.ResourcePool{ID: "p1", Name: "a", Type: "local", Status: types.PoolActive}
	p2 := types.ResourcePool{ID: "p2", Name: "b", Type: "local", Status: types.PoolActive}
	store := newTestPools(t, p1, p2)

	monitor := &fakeMonitor{
		byPool: map[string]types.ResourcePoolUtilization{
			"p2": {PoolID: "p2", TotalCPU: 8, TotalMemoryBytes: 1 << 30},
		},
		err: map[string]error{"p1": assertErr{}},
	}
	s := New(store.ResourcePools(), map[string]ResourceMonitor{"local": monitor}, LeastLoaded)

	result, err := s.FindPlacement(context.Background(), types.Job{ID: ids.Job()}, types.ResourceRequirements{CPU: 1}, "")
	require.NoError(t, err)
	assert.Equal(t, "p2", result.Pool.ID)
}

func TestParseMemorySuffixes(t *testing.T) {
	cases := map[string]int64{
		"":     0,
		"512":  512,
		"1Ki":  1024,
		"1Mi":  1024 * 1024,
		"1Gi":  1024 * 1024 * 1024,
		"1K":   1000,
		"1M":   1000 * 1000,
		"1G":   1000 * 1000 * 1000,
	}
	for in, want := range cases {
		got, err := parseMemory(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
}

func TestParseMemoryInvalidReturnsError(t *testing.T) {
	_, err := parseMemory("not-a-size")
	require.Error(t, err)
}

func TestFindPlacementPinnedPoolSucceeds(t *testing.T) {
	p1 := types.ResourcePool{ID: "p1", Name: "a", Type: "local", Status: types.PoolActive}
	store := newTestPools(t, p1)
	monitor := &fakeMonitor{byPool: map[string]types.ResourcePoolUtilization{
		"p1": {PoolID: "p1", TotalCPU: 8, TotalMemoryBytes: 1 << 30},
	}}
	s := New(store.ResourcePools(), map[string]ResourceMonitor{"local": monitor}, LeastLoaded)

	job := types.Job{ID: ids.Job(), TargetPoolID: "p1"}
	result, err := s.FindPlacement(context.Background(), job, types.ResourceRequirements{CPU: 1}, "")
	require.NoError(t, err)
	assert.Equal(t, "p1", result.Pool.ID)
}

func TestFindPlacementPinnedPoolNotActive(t *testing.T) {
	p1 := types.ResourcePool{ID: "p1", Name: "a", Type: "local", Status: types.PoolDraining}
	store := newTestPools(t, p1)
	s := New(store.ResourcePools(), map[string]ResourceMonitor{}, LeastLoaded)

	job := types.Job{ID: ids.Job(), TargetPoolID: "p1"}
	_, err := s.FindPlacement(context.Background(), job, types.ResourceRequirements{CPU: 1}, "")
	require.Error(t, err)
}

type assertErr struct{}

func (assertErr) Error() string { return "probe failed" }
