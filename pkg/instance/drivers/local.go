// Package drivers provides the three instance.Manager realizations named
// in §4.4, one per resource-pool type.
package drivers

import (
	"context"
	"os/exec"
	"sync"
	"syscall"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/ids"
	"github.com/hodei-pipelines/orchestrator/pkg/instance"
	"github.com/hodei-pipelines/orchestrator/pkg/log"
)

// Local provisions a worker instance as a plain OS process (os/exec) — the
// one justified stdlib-only concern in the instance manager: no library in
// the pack wraps raw process supervision more idiomatically than the
// standard library for this case (§4.4).
type Local struct {
	mu    sync.Mutex
	procs map[string]*exec.Cmd
}

// NewLocal constructs an empty Local driver.
func NewLocal() *Local {
	return &Local{procs: make(map[string]*exec.Cmd)}
}

func (l *Local) ProvisionInstance(ctx context.Context, poolID string, spec instance.InstanceSpec) (instance.Instance, error) {
	if len(spec.Command) == 0 {
		return instance.Instance{}, apperr.Provisioning("drivers.Local", apperr.ProvBadSpec, "empty command")
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	for k, v := range spec.Environment {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	if err := cmd.Start(); err != nil {
		return instance.Instance{}, apperr.Provisioning("drivers.Local", apperr.ProvBackendUnavailable, "failed to start worker process: "+err.Error())
	}

	instanceID := spec.Metadata["workerId"]
	if instanceID == "" {
		instanceID = ids.Worker()
	}

	l.mu.Lock()
	l.procs[instanceID] = cmd
	l.mu.Unlock()

	go func() {
		_ = cmd.Wait()
		l.mu.Lock()
		delete(l.procs, instanceID)
		l.mu.Unlock()
	}()

	return instance.Instance{ID: instanceID, PoolID: poolID, Status: instance.StatusRunning}, nil
}

// TerminateInstance sends SIGTERM to the tracked process; an unknown
// instance id is not an error (§4.4).
func (l *Local) TerminateInstance(ctx context.Context, instanceID string) error {
	l.mu.Lock()
	cmd, ok := l.procs[instanceID]
	l.mu.Unlock()
	if !ok {
		return nil
	}
	if cmd.Process == nil {
		return nil
	}
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		log.WithComponent("instance.local").Warn().Err(err).Str("instance_id", instanceID).Msg("failed to signal local worker process")
	}
	return nil
}

func (l *Local) GetInstanceStatus(ctx context.Context, instanceID string) (instance.Status, error) {
	l.mu.Lock()
	_, ok := l.procs[instanceID]
	l.mu.Unlock()
	if !ok {
		return instance.StatusTerminated, nil
	}
	return instance.StatusRunning, nil
}

func (l *Local) ListInstances(ctx context.Context, poolID string) ([]instance.Instance, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]instance.Instance, 0, len(l.procs))
	for id := range l.procs {
		out = append(out, instance.Instance{ID: id, PoolID: poolID, Status: instance.StatusRunning})
	}
	return out, nil
}

// ScaleInstances is not meaningful for the local driver: each job
// provisions its own process via ProvisionInstance. It reports the current
// count without taking action.
func (l *Local) ScaleInstances(ctx context.Context, poolID string, targetCount int) (instance.ScaleResult, error) {
	l.mu.Lock()
	actual := len(l.procs)
	l.mu.Unlock()
	return instance.ScaleResult{Requested: targetCount, Actual: actual}, nil
}

func (l *Local) GetAvailableInstanceTypes(ctx context.Context, poolID string) ([]string, error) {
	return []string{"SMALL", "MEDIUM", "LARGE"}, nil
}
