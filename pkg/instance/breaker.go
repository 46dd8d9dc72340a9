package instance

import (
	"context"
	"sync"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/metrics"
	"github.com/sony/gobreaker"
)

// BreakerManager wraps a pool-type driver registry with a sony/gobreaker
// circuit breaker keyed by pool id (§4.4): repeated backend failures open
// the breaker for that pool so further calls fail fast with
// ProvisioningError{Kind: BackendUnavailable} instead of hammering a down
// backend. TerminateInstance and GetInstanceStatus key their breaker by
// instance id instead.
type BreakerManager struct {
	drivers map[string]Manager // keyed by pool type

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerManager wraps drivers (keyed by pool type, e.g. "local",
// "container", "kubernetes").
func NewBreakerManager(drivers map[string]Manager) *BreakerManager {
	return &BreakerManager{
		drivers:  drivers,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (m *BreakerManager) breakerFor(poolID string) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.breakers[poolID]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "instance-manager:" + poolID,
		MaxRequests: 1,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	m.breakers[poolID] = b
	return b
}

func (m *BreakerManager) driverForPoolType(poolType string) (Manager, error) {
	d, ok := m.drivers[poolType]
	if !ok {
		return nil, apperr.Provisioning("instance.BreakerManager", apperr.ProvBadSpec, "no driver registered for pool type "+poolType)
	}
	return d, nil
}

// through runs fn against the breaker for poolID, translating a tripped
// breaker into a BackendUnavailable ProvisioningError.
func through[T any](m *BreakerManager, poolID string, fn func() (T, error)) (T, error) {
	var zero T
	result, err := m.breakerFor(poolID).Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return zero, apperr.Provisioning("instance.BreakerManager", apperr.ProvBackendUnavailable, "circuit breaker open for pool "+poolID)
		}
		return zero, err
	}
	return result.(T), nil
}

// ProvisionInstance dispatches to the driver registered for poolType.
func (m *BreakerManager) ProvisionInstance(ctx context.Context, poolType, poolID string, spec InstanceSpec) (Instance, error) {
	driver, err := m.driverForPoolType(poolType)
	if err != nil {
		return Instance{}, err
	}
	return through(m, poolID, func() (Instance, error) {
		return driver.ProvisionInstance(ctx, poolID, spec)
	})
}

// TerminateInstance is idempotent: terminating an unknown instance is not
// an error (§4.4), left to the underlying driver to honor.
func (m *BreakerManager) TerminateInstance(ctx context.Context, poolType, instanceID string) error {
	driver, err := m.driverForPoolType(poolType)
	if err != nil {
		return err
	}
	_, err = through(m, instanceID, func() (struct{}, error) {
		return struct{}{}, driver.TerminateInstance(ctx, instanceID)
	})
	return err
}

func (m *BreakerManager) GetInstanceStatus(ctx context.Context, poolType, instanceID string) (Status, error) {
	driver, err := m.driverForPoolType(poolType)
	if err != nil {
		return "", err
	}
	return through(m, instanceID, func() (Status, error) {
		return driver.GetInstanceStatus(ctx, instanceID)
	})
}

func (m *BreakerManager) ListInstances(ctx context.Context, poolType, poolID string) ([]Instance, error) {
	driver, err := m.driverForPoolType(poolType)
	if err != nil {
		return nil, err
	}
	return through(m, poolID, func() ([]Instance, error) {
		return driver.ListInstances(ctx, poolID)
	})
}

func (m *BreakerManager) ScaleInstances(ctx context.Context, poolType, poolID string, targetCount int) (ScaleResult, error) {
	driver, err := m.driverForPoolType(poolType)
	if err != nil {
		return ScaleResult{}, err
	}
	return through(m, poolID, func() (ScaleResult, error) {
		return driver.ScaleInstances(ctx, poolID, targetCount)
	})
}

func (m *BreakerManager) GetAvailableInstanceTypes(ctx context.Context, poolType, poolID string) ([]string, error) {
	driver, err := m.driverForPoolType(poolType)
	if err != nil {
		return nil, err
	}
	return through(m, poolID, func() ([]string, error) {
		return driver.GetAvailableInstanceTypes(ctx, poolID)
	})
}
