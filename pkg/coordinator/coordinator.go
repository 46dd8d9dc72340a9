// Package coordinator implements the execution coordinator (C9): the
// single loop gluing the job queue (C2), placement scheduler (C4), worker
// factory (C6) and worker sessions (C7) into one end-to-end dispatch path,
// applying the retry/backoff policy on failure.
package coordinator

import (
	"context"
	"sync"
	"time"

	units "github.com/docker/go-units"
	"github.com/rs/zerolog"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/events"
	"github.com/hodei-pipelines/orchestrator/pkg/ids"
	"github.com/hodei-pipelines/orchestrator/pkg/log"
	"github.com/hodei-pipelines/orchestrator/pkg/metrics"
	"github.com/hodei-pipelines/orchestrator/pkg/protocol"
	"github.com/hodei-pipelines/orchestrator/pkg/queue"
	"github.com/hodei-pipelines/orchestrator/pkg/scheduler"
	"github.com/hodei-pipelines/orchestrator/pkg/session"
	"github.com/hodei-pipelines/orchestrator/pkg/storage"
	"github.com/hodei-pipelines/orchestrator/pkg/types"
	"github.com/hodei-pipelines/orchestrator/pkg/workerfactory"
)

// DefaultTick is the §4.8 step-2 default scheduler tick when nothing else
// wakes the loop sooner.
const DefaultTick = 500 * time.Millisecond

// DefaultGracePeriod is how long CancelJob waits for a terminal
// ExecutionResult before forcing termination (§4.6, §5).
const DefaultGracePeriod = 30 * time.Second

// DefaultRegistrationTimeout bounds how long acquireWorker waits for a
// freshly provisioned worker to complete registration and go IDLE.
const DefaultRegistrationTimeout = 2 * time.Minute

// registrationPollInterval is how often awaitRegistration re-checks
// session state while a newly provisioned worker is still connecting.
const registrationPollInterval = 50 * time.Millisecond

// Dispatcher sends a framed message down a worker's session stream. The
// concrete realization is the gRPC server holding the live stream for
// workerID; Coordinator only depends on this narrow port.
type Dispatcher interface {
	Send(ctx context.Context, workerID string, env protocol.Envelope) error
}

// LogSink receives relayed log chunks for archival/tailing (§4.8 step 7).
type LogSink interface {
	Write(ctx context.Context, chunk protocol.LogChunk) error
}

// dispatchRecord tracks the job/pool/worker triple behind a live execution,
// keyed by execution id, so HandleResult can find its way back to the Job.
type dispatchRecord struct {
	JobID      string
	PoolID     string
	WorkerID   string
	RetryCount int
}

// Coordinator is the C9 glue loop. The zero value is not usable; use New.
type Coordinator struct {
	queue      *queue.Queue
	scheduler  *scheduler.Scheduler
	factory    *workerfactory.Factory
	sessions   *session.Registry
	store      storage.Store
	bus        *events.Bus
	dispatcher Dispatcher
	logSink    LogSink

	tick               time.Duration
	gracePeriod        time.Duration
	registrationWindow time.Duration
	workerReuseWindow  time.Duration
	now                func() time.Time
	logger             zerolog.Logger

	mu         sync.Mutex // single-flights dispatch/result handling (§5)
	records    map[string]dispatchRecord       // executionId -> record
	idleSince  map[string]time.Time            // workerId -> time it went idle
	cancelSubs map[string]chan protocol.ExecutionResult // executionId -> waiter
	pending    []pendingRetry
}

// pendingRetry holds a job re-admitted after a backoff delay, not yet
// visible to the queue until ReadyAt.
type pendingRetry struct {
	Job     types.Job
	Reqs    types.ResourceRequirements
	ReadyAt time.Time
}

// Config configures optional timings; a zero Tick, GracePeriod or
// RegistrationWindow falls back to its Default* constant. A zero
// WorkerReuseWindow disables reuse: a finished worker is torn down at once.
type Config struct {
	Tick               time.Duration
	GracePeriod        time.Duration
	RegistrationWindow time.Duration
	WorkerReuseWindow  time.Duration
}

// New builds a Coordinator over its collaborators.
func New(q *queue.Queue, sched *scheduler.Scheduler, factory *workerfactory.Factory, sessions *session.Registry, store storage.Store, bus *events.Bus, dispatcher Dispatcher, logSink LogSink, cfg Config) *Coordinator {
	tick := cfg.Tick
	if tick <= 0 {
		tick = DefaultTick
	}
	grace := cfg.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	regWindow := cfg.RegistrationWindow
	if regWindow <= 0 {
		regWindow = DefaultRegistrationTimeout
	}

	return &Coordinator{
		queue:              q,
		scheduler:          sched,
		factory:            factory,
		sessions:           sessions,
		store:              store,
		bus:                bus,
		dispatcher:         dispatcher,
		logSink:            logSink,
		tick:               tick,
		gracePeriod:        grace,
		registrationWindow: regWindow,
		workerReuseWindow:  cfg.WorkerReuseWindow,
		now:                ids.Now,
		logger:             log.WithComponent("coordinator"),
		records:            make(map[string]dispatchRecord),
		idleSince:          make(map[string]time.Time),
		cancelSubs:         make(map[string]chan protocol.ExecutionResult),
	}
}

// Run drives the coordinator loop until ctx is cancelled (§4.8 step 2):
// dispatch until the queue is empty, admit any due retries, then sleep for
// tick before trying again. wake may be nil; when provided, a value on it
// short-circuits the sleep (new admission / worker status change).
func (c *Coordinator) Run(ctx context.Context, wake <-chan struct{}) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	for {
		c.admitDueRetries(ctx)
		for {
			dispatched, err := c.DispatchNext(ctx)
			if err != nil {
				c.logger.Error().Err(err).Msg("dispatch failed")
			}
			if !dispatched {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-wake:
		}
	}
}

// DispatchNext performs §4.8 steps 1-6 for at most one job. It returns
// false if no eligible job was found. Job selection and the final
// assignment are serialized by c.mu; the worker-acquisition step releases
// c.mu around its potentially multi-minute provisioning wait so a single
// slow or failing provisioning attempt never blocks HandleResult or
// HandleWorkerDisconnected for unrelated in-flight executions (§5 failure
// isolation).
func (c *Coordinator) DispatchNext(ctx context.Context) (bool, error) {
	c.mu.Lock()
	qj := c.queue.NextJob(c.candidateWorkersLocked())
	if qj == nil {
		c.mu.Unlock()
		return false, nil
	}
	job := qj.Job
	c.queue.Dequeue(job.ID)

	placement, err := c.scheduler.FindPlacement(ctx, job, qj.Requirements, "")
	if err != nil {
		failErr := c.handleDispatchFailureLocked(ctx, *qj, job, err)
		c.mu.Unlock()
		return true, failErr
	}
	c.mu.Unlock()

	memBytes, _ := units.RAMInBytes(qj.Requirements.MemoryMi)

	worker, err := c.acquireWorker(ctx, job, placement.Pool, qj.Requirements, memBytes)
	if err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		return true, c.handleDispatchFailureLocked(ctx, *qj, job, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	execution := types.Execution{
		ID:        ids.Execution(),
		JobID:     job.ID,
		WorkerID:  worker.WorkerID,
		StartedAt: c.now(),
		Status:    types.ExecStarting,
	}
	if err := c.store.Executions().Save(ctx, execution); err != nil {
		return true, apperr.Internal("coordinator.DispatchNext", err)
	}

	job.Status = types.JobRunning
	job.CurrentExecutionID = execution.ID
	job.StartedAt = &execution.StartedAt
	job.Metadata.UpdatedAt = c.now()
	if err := c.store.Jobs().Save(ctx, job); err != nil {
		return true, apperr.Internal("coordinator.DispatchNext", err)
	}

	assignment := protocol.ExecutionAssignment{
		ExecutionID: execution.ID,
		Definition:  definitionFromContent(job.Content),
		EnvVars:     job.Parameters,
	}
	if err := c.sessions.AssignExecution(worker.WorkerID, execution.ID); err != nil {
		return true, apperr.Wrap(apperr.KindTransport, "coordinator.DispatchNext", err)
	}
	if err := c.dispatcher.Send(ctx, worker.WorkerID, protocol.Envelope{Kind: protocol.KindExecutionAssignment, Payload: assignment}); err != nil {
		return true, c.handleDispatchFailureLocked(ctx, *qj, job, apperr.Transport("coordinator.DispatchNext", "failed to send assignment: "+err.Error()))
	}

	c.records[execution.ID] = dispatchRecord{JobID: job.ID, PoolID: placement.Pool.ID, WorkerID: worker.WorkerID, RetryCount: qj.RetryCount}
	delete(c.idleSince, worker.WorkerID)

	c.bus.Publish(events.Event{Kind: events.JobStarted, JobID: job.ID, WorkerID: worker.WorkerID, ExecutionID: execution.ID, PoolID: placement.Pool.ID})
	c.bus.Publish(events.Event{Kind: events.AssignmentDispatched, JobID: job.ID, WorkerID: worker.WorkerID, ExecutionID: execution.ID, PoolID: placement.Pool.ID})

	return true, nil
}

func definitionFromContent(content types.JobContent) protocol.ExecutionDefinition {
	if content.Kind == types.ContentScript {
		return protocol.ExecutionDefinition{Script: content.Script}
	}
	return protocol.ExecutionDefinition{Shell: content.Commands}
}

// candidateWorkersLocked reports workers eligible for a new assignment:
// IDLE sessions, single-job-per-worker (§4.6: a worker is BUSY with at
// most one execution at a time), plus one unlabelled slot standing for a
// worker not yet provisioned. A job without affinity labels can therefore
// be selected when no worker is IDLE (acquireWorker then provisions one);
// a job with affinity labels is selected only when an IDLE worker whose
// capabilities carry those labels is registered.
func (c *Coordinator) candidateWorkersLocked() []types.CandidateWorker {
	idle := c.sessions.IdleWorkers()
	out := make([]types.CandidateWorker, 0, len(idle))
	for _, s := range idle {
		out = append(out, types.CandidateWorker{
			WorkerID:          s.WorkerID,
			Labels:            s.Capabilities,
			ActiveJobs:        0,
			MaxConcurrentJobs: 1,
		})
	}
	out = append(out, types.CandidateWorker{MaxConcurrentJobs: 1})
	return out
}

// reusableWorkerLocked returns an IDLE worker already provisioned on pool,
// if one exists (§4.8 step 4: "reuse an IDLE worker if one exists").
func (c *Coordinator) reusableWorkerLocked(poolID string) (types.WorkerInstance, bool) {
	for _, w := range c.factory.ActiveWorkers() {
		if w.PoolID != poolID {
			continue
		}
		if s, ok := c.sessions.Get(w.WorkerID); ok && s.State == types.StateIdle {
			return w, true
		}
	}
	return types.WorkerInstance{}, false
}

// acquireWorker returns an IDLE worker for pool, reusing one already
// registered if possible. The reuse check is a short, c.mu-held lookup;
// provisioning a new worker and waiting for it to register is not done
// under c.mu, since that wait can run for up to the registration window
// while a brand-new instance boots (§5 failure isolation).
func (c *Coordinator) acquireWorker(ctx context.Context, job types.Job, pool types.ResourcePool, req types.ResourceRequirements, memBytes int64) (types.WorkerInstance, error) {
	c.mu.Lock()
	w, ok := c.reusableWorkerLocked(pool.ID)
	c.mu.Unlock()
	if ok {
		return w, nil
	}

	worker, err := c.factory.CreateWorker(ctx, job, pool, req, memBytes)
	if err != nil {
		return types.WorkerInstance{}, err
	}
	if err := c.awaitRegistration(ctx, worker.WorkerID); err != nil {
		return types.WorkerInstance{}, err
	}
	c.bus.Publish(events.Event{Kind: events.WorkerRegistered, WorkerID: worker.WorkerID, PoolID: pool.ID})
	return worker, nil
}

// awaitRegistration blocks until workerID's session reports IDLE, the
// provisioning deadline expires, or ctx is cancelled (§5: instance
// provisioning is a suspension point).
func (c *Coordinator) awaitRegistration(ctx context.Context, workerID string) error {
	deadline := c.now().Add(c.registrationWindow)
	waitCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(registrationPollInterval)
	defer ticker.Stop()
	for {
		if s, ok := c.sessions.Get(workerID); ok && s.State == types.StateIdle {
			return nil
		}
		select {
		case <-waitCtx.Done():
			return apperr.Provisioning("coordinator.awaitRegistration", apperr.ProvTimeout, "worker did not register before deadline")
		case <-ticker.C:
		}
	}
}

// RelayStatus implements §4.8 step 7 for StatusUpdate messages.
func (c *Coordinator) RelayStatus(ctx context.Context, workerID string, update protocol.StatusUpdate) {
	rec, _ := c.recordFor(update.ExecutionID)
	c.bus.Publish(events.Event{
		Kind:        events.Kind(update.EventType),
		ExecutionID: update.ExecutionID,
		WorkerID:    workerID,
		JobID:       rec.JobID,
		Message:     update.Message,
	})
}

// RelayLogChunk implements §4.8 step 7 for LogChunk messages, honoring the
// log sink's own backpressure (§5: the orchestrator never drops logs
// silently).
func (c *Coordinator) RelayLogChunk(ctx context.Context, chunk protocol.LogChunk) error {
	if c.logSink == nil {
		return nil
	}
	if err := c.logSink.Write(ctx, chunk); err != nil {
		return apperr.Internal("coordinator.RelayLogChunk", err)
	}
	return nil
}

func (c *Coordinator) recordFor(executionID string) (dispatchRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[executionID]
	return rec, ok
}
