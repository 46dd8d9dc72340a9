// Package workerfactory implements the worker factory (C6): given a Job
// and the ResourcePool it was placed on, it deterministically builds an
// instance.InstanceSpec and provisions a worker instance through the
// instance manager port, tracking the resulting WorkerInstance until it is
// destroyed.
package workerfactory

import (
	"context"
	"sync"
	"time"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/ids"
	"github.com/hodei-pipelines/orchestrator/pkg/instance"
	"github.com/hodei-pipelines/orchestrator/pkg/types"
)

// WorkerConfiguration is loaded from YAML, keyed by pool type (§4.5).
type WorkerConfiguration struct {
	PoolType            string            `yaml:"poolType"`
	WorkerBinary        string            `yaml:"workerBinary"`
	ServerEndpoint      string            `yaml:"serverEndpoint"`
	Image               string            `yaml:"image,omitempty"`
	ProvisioningTimeout time.Duration     `yaml:"provisioningTimeout,omitempty"`
	ExtraEnvironment    map[string]string `yaml:"extraEnvironment,omitempty"`
}

// defaultProvisioningTimeout returns the §4.5 per-pool-type default
// (60s kubernetes / 30s container / 10s local) when the configuration
// leaves ProvisioningTimeout unset.
func defaultProvisioningTimeout(poolType string) time.Duration {
	switch poolType {
	case "kubernetes":
		return 60 * time.Second
	case "container":
		return 30 * time.Second
	default: // local
		return 10 * time.Second
	}
}

// ConfigurationError is returned when no WorkerConfiguration is registered
// for a pool's type.
func ConfigurationError(poolType string) error {
	return apperr.NotFound("workerfactory.configurationFor", "worker configuration for pool type "+poolType)
}

// Factory derives InstanceSpecs from jobs and pools and drives
// provisioning through the instance manager, tracking live workers.
type Factory struct {
	manager InstanceProvisioner
	configs map[string]WorkerConfiguration // keyed by pool type

	mu      sync.Mutex
	workers map[string]types.WorkerInstance // keyed by workerId
}

// InstanceProvisioner is the subset of instance.BreakerManager the factory
// drives.
type InstanceProvisioner interface {
	ProvisionInstance(ctx context.Context, poolType, poolID string, spec instance.InstanceSpec) (instance.Instance, error)
	TerminateInstance(ctx context.Context, poolType, instanceID string) error
}

// New builds a Factory over manager, with one WorkerConfiguration per pool
// type.
func New(manager InstanceProvisioner, configs []WorkerConfiguration) *Factory {
	byType := make(map[string]WorkerConfiguration, len(configs))
	for _, c := range configs {
		byType[c.PoolType] = c
	}
	return &Factory{manager: manager, configs: byType, workers: make(map[string]types.WorkerInstance)}
}

// deriveInstanceType maps cpu/memory hints to a size tier (§4.5 step 2).
func deriveInstanceType(req types.ResourceRequirements, memBytes int64) types.InstanceType {
	const mi = 1 << 20
	switch {
	case req.CPU <= 1 && memBytes <= 2048*mi:
		return types.InstanceSmall
	case req.CPU <= 2 && memBytes <= 4096*mi:
		return types.InstanceMedium
	case req.CPU <= 4 && memBytes <= 8192*mi:
		return types.InstanceLarge
	default:
		return types.InstanceXLarge
	}
}

// CreateWorker implements §4.5's provisioning algorithm end to end.
func (f *Factory) CreateWorker(ctx context.Context, job types.Job, pool types.ResourcePool, req types.ResourceRequirements, memBytes int64) (types.WorkerInstance, error) {
	cfg, ok := f.configs[pool.Type]
	if !ok {
		return types.WorkerInstance{}, ConfigurationError(pool.Type)
	}

	workerID := ids.Worker()
	instanceType := deriveInstanceType(req, memBytes)

	command := []string{cfg.WorkerBinary, "--server", cfg.ServerEndpoint, "--pool-id", pool.ID, "--tls"}

	environment := map[string]string{
		"HODEI_JOB_ID":    job.ID,
		"HODEI_POOL_ID":   pool.ID,
		"HODEI_POOL_TYPE": pool.Type,
		"HODEI_LOG_LEVEL": "INFO",
		"HODEI_WORKER_ID": workerID,
	}
	for k, v := range cfg.ExtraEnvironment {
		environment[k] = v
	}

	spec := instance.InstanceSpec{
		InstanceType: string(instanceType),
		Image:        cfg.Image,
		Command:      command,
		Environment:  environment,
		Labels:       job.Labels,
		Metadata:     map[string]string{"workerId": workerID},
	}

	timeout := cfg.ProvisioningTimeout
	if timeout == 0 {
		timeout = defaultProvisioningTimeout(pool.Type)
	}
	provisionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	provisioned, err := f.manager.ProvisionInstance(provisionCtx, pool.Type, pool.ID, spec)
	if err != nil {
		return types.WorkerInstance{}, apperr.Wrap(apperr.KindProvisioning, "workerfactory.CreateWorker", err)
	}

	now := ids.Now()
	worker := types.WorkerInstance{
		WorkerID:      workerID,
		PoolID:        pool.ID,
		PoolType:      pool.Type,
		InstanceType:  instanceType,
		Status:        types.InstanceProvisioning,
		Metadata:      map[string]string{"instanceId": provisioned.ID},
		CreatedAt:     now,
		LastUpdatedAt: now,
	}

	f.mu.Lock()
	f.workers[workerID] = worker
	f.mu.Unlock()

	return worker, nil
}

// DestroyWorker removes the tracking entry for workerID and delegates
// termination to the instance manager (§4.5 step 7); unknown workers
// return apperr.NotFound.
func (f *Factory) DestroyWorker(ctx context.Context, workerID string) error {
	f.mu.Lock()
	worker, ok := f.workers[workerID]
	f.mu.Unlock()
	if !ok {
		return apperr.NotFound("workerfactory.DestroyWorker", workerID)
	}

	instanceID := worker.Metadata["instanceId"]
	if err := f.manager.TerminateInstance(ctx, worker.PoolType, instanceID); err != nil {
		return apperr.Wrap(apperr.KindProvisioning, "workerfactory.DestroyWorker", err)
	}

	f.mu.Lock()
	delete(f.workers, workerID)
	f.mu.Unlock()
	return nil
}

// GetWorker returns the tracked WorkerInstance for workerID.
func (f *Factory) GetWorker(workerID string) (types.WorkerInstance, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.workers[workerID]
	return w, ok
}

// ActiveWorkers returns a snapshot of all currently tracked workers.
func (f *Factory) ActiveWorkers() []types.WorkerInstance {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]types.WorkerInstance, 0, len(f.workers))
	for _, w := range f.workers {
		out = append(out, w)
	}
	return out
}
