/*
Package scheduler implements the placement scheduler (C4): it chooses a
resource pool for a job from among the pools with enough free capacity to
run it.

# Placement

FindPlacement loads the active pools, probes each one's current
utilization concurrently (via golang.org/x/sync/errgroup — a pool whose
probe fails or times out is logged and skipped rather than failing the
whole call), filters out pools that cannot satisfy the job's cpu/memory/
max-jobs requirements, and hands the remaining candidates to the named
strategy:

  - roundrobin — a stateful cursor over candidate ids ordered by name;
    calling it with a single candidate is idempotent.
  - greedy — the pool with the smallest free resource that still fits
    the job (best-fit).
  - leastloaded — the pool with the lowest max(cpuUsed/cpuTotal,
    memUsed/memTotal).
  - binpacking — the first candidate pool, ordered by name, whose free
    capacity fits.

A job with TargetPoolID set skips candidate selection and is placed
directly on that pool, provided it is active and has room.

# Utilization smoothing

Each probed sample is folded into a per-pool exponentially weighted
moving average (VividCortex/ewma) before being handed to a strategy, so a
single noisy reading does not flap placement decisions between ticks.

# Memory parsing

Resource requirement memory strings use the Ki/Mi/Gi/Ti (binary) and
K/M/G/T (decimal) suffix grammar, parsed with
github.com/docker/go-units. A bare integer is bytes; an unparseable
string is treated as zero and logged as a warning.

# Provisioning rate limiting

ProvisionLimiter hands out a golang.org/x/time/rate limiter per pool id,
shared across calls, so the instance manager can bound how often it
attempts to provision a new worker for a pool that keeps failing.
*/
package scheduler
