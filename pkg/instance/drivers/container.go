package drivers

import (
	"context"
	"sync"
	"time"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/ids"
	"github.com/hodei-pipelines/orchestrator/pkg/instance"
)

const (
	// containerNamespace is the containerd namespace worker containers run
	// under.
	containerNamespace = "hodei"

	// defaultSocketPath is the default containerd socket.
	defaultSocketPath = "/run/containerd/containerd.sock"
)

// Container provisions a worker instance as a containerd container,
// adapted from the teacher's ContainerdRuntime (PullImage/CreateContainer/
// StartContainer) to the instance-manager contract (§4.4).
type Container struct {
	client *containerd.Client

	mu      sync.Mutex
	tracked map[string]string // instance id -> containerd container id
}

// NewContainer dials containerd at socketPath (defaultSocketPath when
// empty).
func NewContainer(socketPath string) (*Container, error) {
	if socketPath == "" {
		socketPath = defaultSocketPath
	}
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, apperr.Provisioning("drivers.Container", apperr.ProvBackendUnavailable, "failed to connect to containerd: "+err.Error())
	}
	return &Container{client: client, tracked: make(map[string]string)}, nil
}

func (c *Container) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, containerNamespace)
}

func (c *Container) ProvisionInstance(ctx context.Context, poolID string, spec instance.InstanceSpec) (instance.Instance, error) {
	ctx = c.ctx(ctx)

	if spec.Image == "" {
		return instance.Instance{}, apperr.Provisioning("drivers.Container", apperr.ProvBadSpec, "missing image")
	}

	image, err := c.client.Pull(ctx, spec.Image, containerd.WithPullUnpack)
	if err != nil {
		return instance.Instance{}, apperr.Provisioning("drivers.Container", apperr.ProvBackendUnavailable, "failed to pull image: "+err.Error())
	}

	instanceID := spec.Metadata["workerId"]
	if instanceID == "" {
		instanceID = ids.Worker()
	}

	env := make([]string, 0, len(spec.Environment))
	for k, v := range spec.Environment {
		env = append(env, k+"="+v)
	}

	opts := []oci.SpecOpts{
		oci.WithImageConfig(image),
		oci.WithEnv(env),
	}
	if len(spec.Command) > 0 {
		opts = append(opts, oci.WithProcessArgs(spec.Command...))
	}

	ctrdContainer, err := c.client.NewContainer(
		ctx,
		instanceID,
		containerd.WithImage(image),
		containerd.WithNewSnapshot(instanceID+"-snapshot", image),
		containerd.WithNewSpec(opts...),
	)
	if err != nil {
		return instance.Instance{}, apperr.Provisioning("drivers.Container", apperr.ProvBackendUnavailable, "failed to create container: "+err.Error())
	}

	task, err := ctrdContainer.NewTask(ctx, cio.NullIO)
	if err != nil {
		return instance.Instance{}, apperr.Provisioning("drivers.Container", apperr.ProvBackendUnavailable, "failed to create task: "+err.Error())
	}
	if err := task.Start(ctx); err != nil {
		return instance.Instance{}, apperr.Provisioning("drivers.Container", apperr.ProvBackendUnavailable, "failed to start task: "+err.Error())
	}

	c.mu.Lock()
	c.tracked[instanceID] = ctrdContainer.ID()
	c.mu.Unlock()

	return instance.Instance{ID: instanceID, PoolID: poolID, Status: instance.StatusRunning}, nil
}

func (c *Container) TerminateInstance(ctx context.Context, instanceID string) error {
	ctx = c.ctx(ctx)

	c.mu.Lock()
	containerID, ok := c.tracked[instanceID]
	c.mu.Unlock()
	if !ok {
		return nil
	}

	ctrdContainer, err := c.client.LoadContainer(ctx, containerID)
	if err != nil {
		return nil // already gone
	}

	if task, err := ctrdContainer.Task(ctx, nil); err == nil {
		stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		_, _ = task.Delete(stopCtx)
	}
	if err := ctrdContainer.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return apperr.Provisioning("drivers.Container", apperr.ProvBackendUnavailable, "failed to delete container: "+err.Error())
	}

	c.mu.Lock()
	delete(c.tracked, instanceID)
	c.mu.Unlock()
	return nil
}

func (c *Container) GetInstanceStatus(ctx context.Context, instanceID string) (instance.Status, error) {
	ctx = c.ctx(ctx)

	c.mu.Lock()
	containerID, ok := c.tracked[instanceID]
	c.mu.Unlock()
	if !ok {
		return instance.StatusTerminated, nil
	}

	ctrdContainer, err := c.client.LoadContainer(ctx, containerID)
	if err != nil {
		return instance.StatusTerminated, nil
	}
	task, err := ctrdContainer.Task(ctx, nil)
	if err != nil {
		return instance.StatusStopped, nil
	}
	status, err := task.Status(ctx)
	if err != nil {
		return instance.StatusFailed, apperr.Provisioning("drivers.Container", apperr.ProvBackendUnavailable, "failed to get task status: "+err.Error())
	}
	switch status.Status {
	case containerd.Running:
		return instance.StatusRunning, nil
	case containerd.Stopped:
		if status.ExitStatus == 0 {
			return instance.StatusStopped, nil
		}
		return instance.StatusFailed, nil
	default:
		return instance.StatusProvisioning, nil
	}
}

func (c *Container) ListInstances(ctx context.Context, poolID string) ([]instance.Instance, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]instance.Instance, 0, len(c.tracked))
	for id := range c.tracked {
		out = append(out, instance.Instance{ID: id, PoolID: poolID})
	}
	return out, nil
}

func (c *Container) ScaleInstances(ctx context.Context, poolID string, targetCount int) (instance.ScaleResult, error) {
	c.mu.Lock()
	actual := len(c.tracked)
	c.mu.Unlock()
	return instance.ScaleResult{Requested: targetCount, Actual: actual}, nil
}

func (c *Container) GetAvailableInstanceTypes(ctx context.Context, poolID string) ([]string, error) {
	return []string{"SMALL", "MEDIUM", "LARGE", "XLARGE"}, nil
}

// Close releases the containerd client connection.
func (c *Container) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
