// Package scheduler implements the placement scheduler (C4): concurrent
// utilization probing of active resource pools followed by a pluggable
// strategy that picks among the pools a job's requirements fit.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/VividCortex/ewma"
	units "github.com/docker/go-units"
	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/log"
	"github.com/hodei-pipelines/orchestrator/pkg/metrics"
	"github.com/hodei-pipelines/orchestrator/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Strategy selects among the pools that already satisfy a job's resource
// requirements (§4.3).
type Strategy string

const (
	RoundRobin  Strategy = "roundrobin"
	Greedy      Strategy = "greedy"
	LeastLoaded Strategy = "leastloaded"
	BinPacking  Strategy = "binpacking"
)

// ResourceMonitor is the per-pool-type utilization probe collaborator
// (§4.3): getUtilization(poolId). Implementations may be network-bound.
type ResourceMonitor interface {
	GetUtilization(ctx context.Context, poolID string) (types.ResourcePoolUtilization, error)
}

// PoolLister supplies the active pools placement chooses among; satisfied
// by pool.Registry.
type PoolLister interface {
	FindActive(ctx context.Context) ([]types.ResourcePool, error)
	FindByID(ctx context.Context, id string) (types.ResourcePool, error)
}

// Result is the §4.3 findPlacement return: a chosen pool, or an error
// naming why none was found.
type Result struct {
	Pool types.ResourcePool
}

// Scheduler probes pool utilization concurrently and ranks the result under
// a named strategy.
type Scheduler struct {
	pools    PoolLister
	monitors map[string]ResourceMonitor // keyed by pool type
	strategy Strategy
	logger   zerolog.Logger

	mu          sync.Mutex
	rrCursor    int
	smoothed    map[string]ewma.MovingAverage
	provisionRL map[string]*rate.Limiter
}

// New builds a Scheduler over pools, dispatching utilization probes to the
// ResourceMonitor registered per pool type. defaultStrategy is used when a
// placement call does not name one.
func New(pools PoolLister, monitors map[string]ResourceMonitor, defaultStrategy Strategy) *Scheduler {
	if defaultStrategy == "" {
		defaultStrategy = LeastLoaded
	}
	return &Scheduler{
		pools:       pools,
		monitors:    monitors,
		strategy:    defaultStrategy,
		logger:      log.WithComponent("scheduler"),
		smoothed:    make(map[string]ewma.MovingAverage),
		provisionRL: make(map[string]*rate.Limiter),
	}
}

// FindPlacement implements §4.3's findPlacement(job, strategyName?).
func (s *Scheduler) FindPlacement(ctx context.Context, job types.Job, req types.ResourceRequirements, strategyName string) (Result, error) {
	timer := metrics.NewTimer()
	strategy := s.strategy
	if strategyName != "" {
		strategy = Strategy(strategyName)
	}

	result, err := s.findPlacement(ctx, job, req, strategy)
	timer.ObserveDuration(metrics.SchedulingLatency)

	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.PlacementsTotal.WithLabelValues(string(strategy), outcome).Inc()
	return result, err
}

func (s *Scheduler) findPlacement(ctx context.Context, job types.Job, req types.ResourceRequirements, strategy Strategy) (Result, error) {
	active, err := s.pools.FindActive(ctx)
	if err != nil {
		return Result{}, apperr.Internal("scheduler.FindPlacement", err)
	}
	if len(active) == 0 {
		return Result{}, apperr.Provisioning("scheduler.FindPlacement", apperr.ProvPoolNotFound, "no active pools")
	}

	// A pinned pool bypasses candidate selection entirely.
	if job.TargetPoolID != "" {
		return s.placeOnPinnedPool(ctx, job, req)
	}

	memBytes, memErr := parseMemory(req.MemoryMi)
	if memErr != nil {
		s.logger.Warn().Err(memErr).Str("memory", req.MemoryMi).Msg("failed to parse memory requirement, treating as 0")
	}

	candidates := s.probeAll(ctx, active)
	fit := make([]poolUtilization, 0, len(candidates))
	for _, c := range candidates {
		if c.Utilization.Fits(req, memBytes) {
			fit = append(fit, c)
		}
	}
	if len(fit) == 0 {
		return Result{}, apperr.Provisioning("scheduler.FindPlacement", apperr.ProvInsufficientCapacity, "no pool has capacity for this job")
	}

	sort.Slice(fit, func(i, j int) bool { return fit[i].Pool.Name < fit[j].Pool.Name })

	chosen := s.selectByStrategy(fit, strategy, memBytes, req)
	return Result{Pool: chosen.Pool}, nil
}

func (s *Scheduler) placeOnPinnedPool(ctx context.Context, job types.Job, req types.ResourceRequirements) (Result, error) {
	p, err := s.pools.FindByID(ctx, job.TargetPoolID)
	if err != nil {
		return Result{}, apperr.Provisioning("scheduler.FindPlacement", apperr.ProvPoolNotFound, "pinned pool not found")
	}
	if p.Status != types.PoolActive {
		return Result{}, apperr.Provisioning("scheduler.FindPlacement", apperr.ProvPoolNotFound, "pinned pool is not active")
	}

	memBytes, _ := parseMemory(req.MemoryMi)
	u, err := s.probe(ctx, p)
	if err != nil {
		return Result{}, apperr.Provisioning("scheduler.FindPlacement", apperr.ProvBackendUnavailable, "resource monitor unreachable")
	}
	if !u.Fits(req, memBytes) {
		return Result{}, apperr.Provisioning("scheduler.FindPlacement", apperr.ProvInsufficientCapacity, "pinned pool lacks capacity")
	}
	return Result{Pool: p}, nil
}

type poolUtilization struct {
	Pool        types.ResourcePool
	Utilization types.ResourcePoolUtilization
}

// probeAll probes every active pool's utilization concurrently via
// errgroup, logging and skipping pools whose probe fails or whose type has
// no registered monitor (§4.3 step 3).
func (s *Scheduler) probeAll(ctx context.Context, pools []types.ResourcePool) []poolUtilization {
	results := make([]poolUtilization, len(pools))
	ok := make([]bool, len(pools))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range pools {
		i, p := i, p
		g.Go(func() error {
			u, err := s.probe(gctx, p)
			if err != nil {
				s.logger.Warn().Err(err).Str("pool_id", p.ID).Msg("utilization probe failed, skipping pool")
				return nil
			}
			results[i] = poolUtilization{Pool: p, Utilization: u}
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait() // individual probe failures are swallowed above, not fatal to placement

	out := make([]poolUtilization, 0, len(pools))
	for i, good := range ok {
		if good {
			out = append(out, results[i])
		}
	}
	return out
}

// probe fetches a single pool's utilization and smooths it with an
// exponentially weighted moving average keyed by pool id, damping a single
// noisy sample from flapping placement decisions across ticks.
func (s *Scheduler) probe(ctx context.Context, p types.ResourcePool) (types.ResourcePoolUtilization, error) {
	monitor, ok := s.monitors[p.Type]
	if !ok {
		return types.ResourcePoolUtilization{}, fmt.Errorf("no resource monitor registered for pool type %q", p.Type)
	}
	u, err := monitor.GetUtilization(ctx, p.ID)
	if err != nil {
		return types.ResourcePoolUtilization{}, err
	}

	s.mu.Lock()
	avg, exists := s.smoothed[p.ID]
	if !exists {
		avg = ewma.NewMovingAverage()
		s.smoothed[p.ID] = avg
	}
	avg.Add(u.Load())
	smoothedLoad := avg.Value()
	s.mu.Unlock()

	if exists && u.TotalCPU > 0 {
		// Scale used-cpu so Load() reports the smoothed figure while
		// free-capacity checks still use the raw sample.
		u.UsedCPU = smoothedLoad * u.TotalCPU
	}
	return u, nil
}

func (s *Scheduler) selectByStrategy(fit []poolUtilization, strategy Strategy, memBytes int64, req types.ResourceRequirements) poolUtilization {
	switch strategy {
	case RoundRobin:
		return s.roundRobin(fit)
	case Greedy:
		return greedy(fit, req, memBytes)
	case BinPacking:
		return fit[0] // already sorted by name
	default: // LeastLoaded
		return leastLoaded(fit)
	}
}

// roundRobin advances a stateful cursor over candidate ids ordered by name;
// idempotent when called with a single candidate (§4.3).
func (s *Scheduler) roundRobin(fit []poolUtilization) poolUtilization {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(fit) == 1 {
		return fit[0]
	}
	chosen := fit[s.rrCursor%len(fit)]
	s.rrCursor++
	return chosen
}

// greedy picks the pool with the smallest free resource that still fits
// the job — best-fit (§4.3).
func greedy(fit []poolUtilization, req types.ResourceRequirements, memBytes int64) poolUtilization {
	best := fit[0]
	bestSlack := slack(best.Utilization, req, memBytes)
	for _, c := range fit[1:] {
		if s := slack(c.Utilization, req, memBytes); s < bestSlack {
			best, bestSlack = c, s
		}
	}
	return best
}

func slack(u types.ResourcePoolUtilization, req types.ResourceRequirements, memBytes int64) float64 {
	cpuSlack := u.FreeCPU() - req.CPU
	memSlack := float64(u.FreeMemoryBytes()-memBytes) / (1 << 20)
	return cpuSlack + memSlack
}

// leastLoaded picks the pool with the lowest max(cpuUsed/cpuTotal,
// memUsed/memTotal) (§4.3).
func leastLoaded(fit []poolUtilization) poolUtilization {
	best := fit[0]
	bestLoad := best.Utilization.Load()
	for _, c := range fit[1:] {
		if l := c.Utilization.Load(); l < bestLoad {
			best, bestLoad = c, l
		}
	}
	return best
}

// parseMemory interprets the §4.3 suffix grammar (Ki/Mi/Gi/Ti binary,
// K/M/G/T decimal; bare integers are bytes) via go-units. Parse failures
// yield 0 and are reported as an error for the caller to log as a warning.
func parseMemory(raw string) (int64, error) {
	if raw == "" {
		return 0, nil
	}
	parse := units.FromHumanSize
	if strings.ContainsAny(raw, "iI") {
		parse = units.RAMInBytes
	}
	n, err := parse(raw)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ProvisionLimiter returns the rate limiter bounding how often placement
// will attempt to provision a new instance for poolID, creating one on
// first use (§4.3).
func (s *Scheduler) ProvisionLimiter(poolID string, ratePerSec float64, burst int) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	rl, ok := s.provisionRL[poolID]
	if !ok {
		rl = rate.NewLimiter(rate.Limit(ratePerSec), burst)
		s.provisionRL[poolID] = rl
	}
	return rl
}
