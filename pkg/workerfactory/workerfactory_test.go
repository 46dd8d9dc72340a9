package workerfactory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/instance"
	"github.com/hodei-pipelines/orchestrator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvisioner struct {
	provisionErr  error
	terminateErr  error
	lastSpec      instance.InstanceSpec
	terminateCall string
}

func (f *fakeProvisioner) ProvisionInstance(ctx context.Context, poolType, poolID string, spec instance.InstanceSpec) (instance.Instance, error) {
	f.lastSpec = spec
	if f.provisionErr != nil {
		return instance.Instance{}, f.provisionErr
	}
	return instance.Instance{ID: "instance-1", PoolID: poolID, Status: instance.StatusRunning}, nil
}

func (f *fakeProvisioner) TerminateInstance(ctx context.Context, poolType, instanceID string) error {
	f.terminateCall = instanceID
	return f.terminateErr
}

func testPool() types.ResourcePool {
	return types.ResourcePool{ID: "pool-1", Name: "local", Type: "local", Status: types.PoolActive}
}

func testConfigs() []WorkerConfiguration {
	return []WorkerConfiguration{
		{PoolType: "local", WorkerBinary: "hodei-worker", ServerEndpoint: "localhost:9090"},
	}
}

func TestCreateWorkerMissingConfigurationErrors(t *testing.T) {
	f := New(&fakeProvisioner{}, nil)
	_, err := f.CreateWorker(context.Background(), types.Job{ID: "job-1"}, testPool(), types.ResourceRequirements{}, 0)
	require.Error(t, err)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindNotFound, kind)
}

func TestCreateWorkerBuildsCommandAndEnvironment(t *testing.T) {
	prov := &fakeProvisioner{}
	f := New(prov, testConfigs())

	job := types.Job{ID: "job-1"}
	worker, err := f.CreateWorker(context.Background(), job, testPool(), types.ResourceRequirements{CPU: 0.5}, 512<<20)
	require.NoError(t, err)

	assert.Equal(t, types.InstanceSmall, worker.InstanceType)
	assert.Equal(t, []string{"hodei-worker", "--server", "localhost:9090", "--pool-id", "pool-1", "--tls"}, prov.lastSpec.Command)
	assert.Equal(t, "job-1", prov.lastSpec.Environment["HODEI_JOB_ID"])
	assert.Equal(t, "pool-1", prov.lastSpec.Environment["HODEI_POOL_ID"])
	assert.Equal(t, "local", prov.lastSpec.Environment["HODEI_POOL_TYPE"])
	assert.Equal(t, "INFO", prov.lastSpec.Environment["HODEI_LOG_LEVEL"])

	tracked, ok := f.GetWorker(worker.WorkerID)
	require.True(t, ok)
	assert.Equal(t, worker.WorkerID, tracked.WorkerID)
}

func TestDeriveInstanceTypeTiers(t *testing.T) {
	const mi = 1 << 20
	assert.Equal(t, types.InstanceSmall, deriveInstanceType(types.ResourceRequirements{CPU: 1}, 2048*mi))
	assert.Equal(t, types.InstanceMedium, deriveInstanceType(types.ResourceRequirements{CPU: 2}, 4096*mi))
	assert.Equal(t, types.InstanceLarge, deriveInstanceType(types.ResourceRequirements{CPU: 4}, 8192*mi))
	assert.Equal(t, types.InstanceXLarge, deriveInstanceType(types.ResourceRequirements{CPU: 8}, 16384*mi))
}

func TestCreateWorkerProvisioningFailure(t *testing.T) {
	prov := &fakeProvisioner{provisionErr: errors.New("backend unavailable")}
	f := New(prov, testConfigs())

	_, err := f.CreateWorker(context.Background(), types.Job{ID: "job-1"}, testPool(), types.ResourceRequirements{}, 0)
	require.Error(t, err)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindProvisioning, kind)
}

func TestDestroyWorkerUnknownErrors(t *testing.T) {
	f := New(&fakeProvisioner{}, testConfigs())
	err := f.DestroyWorker(context.Background(), "does-not-exist")
	require.Error(t, err)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindNotFound, kind)
}

func TestDestroyWorkerRemovesTrackingAndDelegates(t *testing.T) {
	prov := &fakeProvisioner{}
	f := New(prov, testConfigs())

	worker, err := f.CreateWorker(context.Background(), types.Job{ID: "job-1"}, testPool(), types.ResourceRequirements{}, 0)
	require.NoError(t, err)

	require.NoError(t, f.DestroyWorker(context.Background(), worker.WorkerID))
	assert.Equal(t, "instance-1", prov.terminateCall)

	_, ok := f.GetWorker(worker.WorkerID)
	assert.False(t, ok)
}

func TestActiveWorkersSnapshot(t *testing.T) {
	prov := &fakeProvisioner{}
	f := New(prov, testConfigs())

	_, err := f.CreateWorker(context.Background(), types.Job{ID: "job-1"}, testPool(), types.ResourceRequirements{}, 0)
	require.NoError(t, err)
	_, err = f.CreateWorker(context.Background(), types.Job{ID: "job-2"}, testPool(), types.ResourceRequirements{}, 0)
	require.NoError(t, err)

	assert.Len(t, f.ActiveWorkers(), 2)
}

func TestDefaultProvisioningTimeouts(t *testing.T) {
	assert.Equal(t, 60*time.Second, defaultProvisioningTimeout("kubernetes"))
	assert.Equal(t, 30*time.Second, defaultProvisioningTimeout("container"))
	assert.Equal(t, 10*time.Second, defaultProvisioningTimeout("local"))
}
