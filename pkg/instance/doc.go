/*
Package instance defines the instance manager port (C5) consumed by the
worker factory: ProvisionInstance, TerminateInstance, GetInstanceStatus,
ListInstances, ScaleInstances and GetAvailableInstanceTypes, each capable
of failing with a ProvisioningError subkind (pool_not_found,
insufficient_capacity, backend_unavailable, quota_exceeded, timeout,
bad_spec).

Three driver realizations live in the drivers subpackage, one per
resource-pool type: drivers.Local spawns the worker binary as an OS
process, drivers.Container provisions a containerd container, and
drivers.Kubernetes provisions a Pod via client-go. All three satisfy
Manager identically.

BreakerManager composes a set of drivers (keyed by pool type) behind a
sony/gobreaker circuit breaker keyed by pool id for provisioning, listing,
scaling and instance-type calls, so repeated backend failures for one pool
open that pool's breaker and fail fast rather than continuing to hammer a
down backend; other pools are unaffected. TerminateInstance and
GetInstanceStatus go through a separate breaker keyed by instance id.
*/
package instance
