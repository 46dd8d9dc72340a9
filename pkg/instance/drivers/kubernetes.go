package drivers

import (
	"context"
	"sync"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/ids"
	"github.com/hodei-pipelines/orchestrator/pkg/instance"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// Kubernetes provisions a worker instance as a Pod via client-go (§4.4):
// the cluster driver named as a collaborator, whose contract conformance
// against instance.Manager is what this package is grounded on.
type Kubernetes struct {
	client    kubernetes.Interface
	namespace string

	mu      sync.Mutex
	tracked map[string]string // instance id -> pod name
}

// NewKubernetes wraps an existing client-go clientset, scoped to namespace.
func NewKubernetes(client kubernetes.Interface, namespace string) *Kubernetes {
	if namespace == "" {
		namespace = "default"
	}
	return &Kubernetes{client: client, namespace: namespace, tracked: make(map[string]string)}
}

func (k *Kubernetes) ProvisionInstance(ctx context.Context, poolID string, spec instance.InstanceSpec) (instance.Instance, error) {
	if spec.Image == "" {
		return instance.Instance{}, apperr.Provisioning("drivers.Kubernetes", apperr.ProvBadSpec, "missing image")
	}

	instanceID := spec.Metadata["workerId"]
	if instanceID == "" {
		instanceID = ids.Worker()
	}

	env := make([]corev1.EnvVar, 0, len(spec.Environment))
	for k, v := range spec.Environment {
		env = append(env, corev1.EnvVar{Name: k, Value: v})
	}

	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      "hodei-worker-" + instanceID,
			Namespace: k.namespace,
			Labels:    spec.Labels,
		},
		Spec: corev1.PodSpec{
			RestartPolicy: corev1.RestartPolicyNever,
			Containers: []corev1.Container{
				{
					Name:    "worker",
					Image:   spec.Image,
					Command: spec.Command,
					Env:     env,
				},
			},
		},
	}

	created, err := k.client.CoreV1().Pods(k.namespace).Create(ctx, pod, metav1.CreateOptions{})
	if err != nil {
		return instance.Instance{}, apperr.Provisioning("drivers.Kubernetes", apperr.ProvBackendUnavailable, "failed to create pod: "+err.Error())
	}

	k.mu.Lock()
	k.tracked[instanceID] = created.Name
	k.mu.Unlock()

	return instance.Instance{ID: instanceID, PoolID: poolID, Status: instance.StatusProvisioning}, nil
}

func (k *Kubernetes) TerminateInstance(ctx context.Context, instanceID string) error {
	k.mu.Lock()
	podName, ok := k.tracked[instanceID]
	k.mu.Unlock()
	if !ok {
		return nil
	}

	err := k.client.CoreV1().Pods(k.namespace).Delete(ctx, podName, metav1.DeleteOptions{})
	if err != nil && !apierrors.IsNotFound(err) {
		return apperr.Provisioning("drivers.Kubernetes", apperr.ProvBackendUnavailable, "failed to delete pod: "+err.Error())
	}

	k.mu.Lock()
	delete(k.tracked, instanceID)
	k.mu.Unlock()
	return nil
}

func (k *Kubernetes) GetInstanceStatus(ctx context.Context, instanceID string) (instance.Status, error) {
	k.mu.Lock()
	podName, ok := k.tracked[instanceID]
	k.mu.Unlock()
	if !ok {
		return instance.StatusTerminated, nil
	}

	pod, err := k.client.CoreV1().Pods(k.namespace).Get(ctx, podName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return instance.StatusTerminated, nil
	}
	if err != nil {
		return instance.StatusFailed, apperr.Provisioning("drivers.Kubernetes", apperr.ProvBackendUnavailable, "failed to get pod: "+err.Error())
	}

	switch pod.Status.Phase {
	case corev1.PodRunning:
		return instance.StatusRunning, nil
	case corev1.PodSucceeded:
		return instance.StatusStopped, nil
	case corev1.PodFailed:
		return instance.StatusFailed, nil
	case corev1.PodPending:
		return instance.StatusProvisioning, nil
	default:
		return instance.StatusProvisioning, nil
	}
}

func (k *Kubernetes) ListInstances(ctx context.Context, poolID string) ([]instance.Instance, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]instance.Instance, 0, len(k.tracked))
	for id := range k.tracked {
		out = append(out, instance.Instance{ID: id, PoolID: poolID})
	}
	return out, nil
}

func (k *Kubernetes) ScaleInstances(ctx context.Context, poolID string, targetCount int) (instance.ScaleResult, error) {
	k.mu.Lock()
	actual := len(k.tracked)
	k.mu.Unlock()
	return instance.ScaleResult{Requested: targetCount, Actual: actual}, nil
}

func (k *Kubernetes) GetAvailableInstanceTypes(ctx context.Context, poolID string) ([]string, error) {
	return []string{"SMALL", "MEDIUM", "LARGE", "XLARGE"}, nil
}
