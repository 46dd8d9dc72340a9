// Package instance implements the instance manager port (C5): a uniform
// provisioning contract satisfied by one driver per resource-pool type
// (local, container, kubernetes), wrapped in a per-pool circuit breaker.
package instance

import (
	"context"
)

// InstanceSpec is the §4.4 InstanceSpec: everything a driver needs to
// provision one worker instance. Metadata always carries the allocated
// workerId; drivers inject it, along with the orchestrator endpoint, into
// the worker's environment so it can dial back (§4.4).
type InstanceSpec struct {
	InstanceType string
	Image        string
	Command      []string
	Environment  map[string]string
	Labels       map[string]string
	Metadata     map[string]string
}

// ScaleResult is the §4.4 scaleInstances return.
type ScaleResult struct {
	Requested   int
	Actual      int
	Provisioned []string
	Failed      []string
}

// Manager is the §4.4 instance-manager port. Every driver realization
// (drivers.Local, drivers.Container, drivers.Kubernetes) satisfies it
// identically.
type Manager interface {
	ProvisionInstance(ctx context.Context, poolID string, spec InstanceSpec) (Instance, error)
	TerminateInstance(ctx context.Context, instanceID string) error
	GetInstanceStatus(ctx context.Context, instanceID string) (Status, error)
	ListInstances(ctx context.Context, poolID string) ([]Instance, error)
	ScaleInstances(ctx context.Context, poolID string, targetCount int) (ScaleResult, error)
	GetAvailableInstanceTypes(ctx context.Context, poolID string) ([]string, error)
}

// Status mirrors types.InstanceStatus without importing the aggregate
// directly, keeping the port's vocabulary driver-agnostic.
type Status string

const (
	StatusProvisioning Status = "PROVISIONING"
	StatusRunning      Status = "RUNNING"
	StatusStopping     Status = "STOPPING"
	StatusStopped      Status = "STOPPED"
	StatusFailed       Status = "FAILED"
	StatusTerminated   Status = "TERMINATED"
)

// Instance is a driver-reported handle to a provisioned worker instance.
type Instance struct {
	ID     string
	PoolID string
	Status Status
}
