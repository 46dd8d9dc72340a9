package pool

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

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	store := storage.NewMemoryStore()
	return New(store.ResourcePools())
}

func TestBootstrapCreatesDefaultPool(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	require.NoError(t, r.Bootstrap(ctx))

	p, err := r.FindByName(ctx, types.DefaultPoolName)
	require.NoError(t, err)
	assert.True(t, p.System)
	assert.Equal(t, types.PoolActive, p.Status)

	// Bootstrap is idempotent.
	require.NoError(t, r.Bootstrap(ctx))
	pools, err := r.List(ctx)
	require.NoError(t, err)
	assert.Len(t, pools, 1)
}

func TestDefaultPoolCannotBeDeleted(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)
	require.NoError(t, r.Bootstrap(ctx))

	p, err := r.FindByName(ctx, types.DefaultPoolName)
	require.NoError(t, err)

	err = r.Delete(ctx, p.ID)
	require.Error(t, err)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindBusinessRule, kind)
}

func TestSaveFindRoundtrip(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	p := types.ResourcePool{ID: ids.Pool(), Name: "gpu-pool", Type: "kubernetes", Status: types.PoolActive}
	require.NoError(t, r.Save(ctx, p))

	found, err := r.FindByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, found.Name)
}

func TestSaveConflictsOnDuplicateName(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	require.NoError(t, r.Save(ctx, types.ResourcePool{ID: ids.Pool(), Name: "shared", Status: types.PoolActive}))
	err := r.Save(ctx, types.ResourcePool{ID: ids.Pool(), Name: "shared", Status: types.PoolActive})
	require.Error(t, err)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindConflict, kind)
}

func TestListDeterministicOrder(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t)

	require.NoError(t, r.Save(ctx, types.ResourcePool{ID: ids.Pool(), Name: "zeta", Status: types.PoolActive}))
	require.NoError(t, r.Save(ctx, types.ResourcePool{ID: ids.Pool(), Name: "alpha", Status: types.PoolActive}))

	pools, err := r.List(ctx)
	require.NoError(t, err)
	require.Len(t, pools, 2)
	assert.Equal(t, "alpha", pools[0].Name)
	assert.Equal(t, "zeta", pools[1].Name)
}

func TestUtilizationByPoolReflectsRecordedSamples(t *testing.T) {
	r := newRegistry(t)
	r.RecordUtilization(types.ResourcePoolUtilization{PoolID: "p1", TotalCPU: 8, UsedCPU: 2})

	util := r.UtilizationByPool()
	assert.InDelta(t, 0.25, util["p1"], 0.001)
}
