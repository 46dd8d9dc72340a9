package coordinator

import (
	"context"
	"strconv"
	"time"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/events"
	"github.com/hodei-pipelines/orchestrator/pkg/metrics"
	"github.com/hodei-pipelines/orchestrator/pkg/protocol"
	"github.com/hodei-pipelines/orchestrator/pkg/types"
)

// HandleResult implements §4.8 step 8: a terminal ExecutionResult arrives
// for workerID. The job transitions accordingly, terminal events publish,
// and the worker is released or retained per the reuse window.
func (c *Coordinator) HandleResult(ctx context.Context, workerID string, result protocol.ExecutionResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.records[result.ExecutionID]
	if !ok {
		return apperr.NotFound("coordinator.HandleResult", result.ExecutionID)
	}
	delete(c.records, result.ExecutionID)

	if waiter, ok := c.cancelSubs[result.ExecutionID]; ok {
		select {
		case waiter <- result:
		default:
		}
		delete(c.cancelSubs, result.ExecutionID)
	}

	return c.finishExecutionLocked(ctx, rec, result.ExecutionID, result.Success, result.ExitCode, result.Details, nil)
}

// HandleWorkerDisconnected implements the §7 transport-loss propagation
// policy: any execution still bound to workerID fails with a
// worker-disconnected cause, which is always retryable per policy.
func (c *Coordinator) HandleWorkerDisconnected(ctx context.Context, workerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var executionID string
	var rec dispatchRecord
	for id, r := range c.records {
		if r.WorkerID == workerID {
			executionID, rec = id, r
			break
		}
	}
	if executionID == "" {
		return nil // no in-flight execution bound to this worker
	}
	delete(c.records, executionID)
	delete(c.idleSince, workerID)

	cause := apperr.Transport("coordinator.HandleWorkerDisconnected", "worker-disconnected")
	return c.finishExecutionLocked(ctx, rec, executionID, false, -1, "worker disconnected", cause)
}

// finishExecutionLocked persists the terminal Execution, transitions the
// Job, applies the retry policy on failure, and releases/retains the
// worker. Called with c.mu held.
func (c *Coordinator) finishExecutionLocked(ctx context.Context, rec dispatchRecord, executionID string, success bool, exitCode int, details string, cause error) error {
	now := c.now()

	exec, err := c.store.Executions().FindByID(ctx, executionID)
	if err != nil {
		exec = types.Execution{ID: executionID, JobID: rec.JobID, WorkerID: rec.WorkerID, StartedAt: now}
	}
	exec.CompletedAt = &now
	exec.ExitCode = exitCode
	if success {
		exec.Status = types.ExecCompleted
	} else {
		exec.Status = types.ExecFailed
	}
	if err := c.store.Executions().Save(ctx, exec); err != nil {
		return apperr.Internal("coordinator.finishExecutionLocked", err)
	}
	metrics.ExecutionDuration.Observe(now.Sub(exec.StartedAt).Seconds())

	job, err := c.store.Jobs().FindByID(ctx, rec.JobID)
	if err != nil {
		return apperr.Internal("coordinator.finishExecutionLocked", err)
	}

	if success {
		job.Status = types.JobCompleted
		job.CompletedAt = &now
		job.Metadata.UpdatedAt = now
		if err := c.store.Jobs().Save(ctx, job); err != nil {
			return apperr.Internal("coordinator.finishExecutionLocked", err)
		}
		metrics.ExecutionsTotal.WithLabelValues("completed").Inc()
		c.bus.Publish(events.Event{Kind: events.JobCompleted, JobID: job.ID, WorkerID: rec.WorkerID, ExecutionID: executionID})
		c.releaseWorkerLocked(rec.WorkerID)
		return nil
	}

	metrics.ExecutionsTotal.WithLabelValues("failed").Inc()

	if c.shouldRetry(job, rec.RetryCount, cause) {
		return c.requeueForRetryLocked(ctx, job, rec, cause)
	}

	if cause == nil {
		cause = apperr.BusinessRule("coordinator.finishExecutionLocked", "execution failed: "+details)
	}

	job.Status = types.JobFailed
	job.CompletedAt = &now
	job.Metadata.UpdatedAt = now
	if err := c.store.Jobs().Save(ctx, job); err != nil {
		return apperr.Internal("coordinator.finishExecutionLocked", err)
	}
	c.bus.Publish(events.Event{Kind: events.JobFailed, JobID: job.ID, WorkerID: rec.WorkerID, ExecutionID: executionID, Message: cause.Error()})
	c.releaseWorkerLocked(rec.WorkerID)
	return nil
}

// shouldRetry implements the §4.8/§7 retry classification: retryCount
// below maxRetries, the job's own retry-on-failure flag set, and the
// failure cause being a retryable kind (transport loss, retryable
// provisioning subkind). A nil cause, a failure the worker itself
// reported in its ExecutionResult, counts as retryable.
func (c *Coordinator) shouldRetry(job types.Job, retryCount int, cause error) bool {
	if !job.Retry.RetryOnFailure {
		return false
	}
	if retryCount >= job.Retry.MaxRetries {
		return false
	}
	if cause == nil {
		return true
	}
	return apperr.Retryable(cause)
}

// requeueForRetryLocked implements §4.8's retry formula: queued-at = now +
// baseDelay * backoffMultiplier^retryCount. The job moves RUNNING->QUEUED
// (the sole purpose of that edge, per §3) but the re-admission is held in
// c.pending until its delay elapses rather than being enqueued early.
func (c *Coordinator) requeueForRetryLocked(ctx context.Context, job types.Job, rec dispatchRecord, cause error) error {
	now := c.now()

	job.Status = types.JobQueued
	job.CurrentExecutionID = ""
	job.Metadata.UpdatedAt = now
	if err := c.store.Jobs().Save(ctx, job); err != nil {
		return apperr.Internal("coordinator.requeueForRetryLocked", err)
	}

	nextRetryCount := rec.RetryCount + 1
	delay := job.Retry.Delay(rec.RetryCount)

	qj, err := c.store.QueuedJobs().FindByJobID(ctx, job.ID)
	requirements := qj.Requirements
	if err != nil {
		requirements = types.ResourceRequirements{}
	}

	c.pending = append(c.pending, pendingRetry{
		Job:     job,
		Reqs:    requirements,
		ReadyAt: now.Add(delay),
	})

	metrics.RetriesTotal.Inc()
	c.bus.Publish(events.Event{Kind: events.JobQueued, JobID: job.ID, Message: "retry " + strconv.Itoa(nextRetryCount) + " scheduled after " + delay.String()})
	c.releaseWorkerLocked(rec.WorkerID)
	return nil
}

// admitDueRetries moves any pending retry whose delay has elapsed into the
// live queue (§4.8 step 2 precursor: a due retry is an admission event).
func (c *Coordinator) admitDueRetries(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var remaining []pendingRetry
	for _, p := range c.pending {
		if now.Before(p.ReadyAt) {
			remaining = append(remaining, p)
			continue
		}
		c.queue.Enqueue(p.Job, p.Reqs)
	}
	c.pending = remaining
}

// releaseWorkerLocked implements §4.8 step 8's worker disposition: within
// the configured reuse window a worker goes back to IDLE and can be
// reused by acquireWorker; with no reuse window configured it is torn
// down immediately.
func (c *Coordinator) releaseWorkerLocked(workerID string) {
	if err := c.sessions.MarkIdle(workerID); err != nil {
		return // session already gone (disconnected, etc.)
	}
	if c.workerReuseWindow <= 0 {
		c.destroyWorkerLocked(workerID)
		return
	}
	c.idleSince[workerID] = c.now()
}

func (c *Coordinator) destroyWorkerLocked(workerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.gracePeriod)
	defer cancel()
	if err := c.factory.DestroyWorker(ctx, workerID); err != nil {
		c.logger.Warn().Err(err).Str("worker_id", workerID).Msg("failed to destroy worker")
	}
	_ = c.sessions.Disconnect(workerID)
	c.bus.Publish(events.Event{Kind: events.WorkerDisconnected, WorkerID: workerID})
}

// SweepIdleWorkers tears down workers that have sat IDLE longer than the
// configured reuse window (§4.8 step 8: "configurable worker reuse
// window"). Callers run this periodically, alongside session.SweepDisconnects.
func (c *Coordinator) SweepIdleWorkers() []string {
	if c.workerReuseWindow <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var torn []string
	for workerID, since := range c.idleSince {
		if now.Sub(since) >= c.workerReuseWindow {
			delete(c.idleSince, workerID)
			c.destroyWorkerLocked(workerID)
			torn = append(torn, workerID)
		}
	}
	return torn
}

// CancelJob implements the §4.6/§5 cancellation contract: send
// CancelExecution and wait up to gracePeriod for a terminal result;
// failing that, force termination through the instance manager.
func (c *Coordinator) CancelJob(ctx context.Context, jobID string) error {
	job, err := c.store.Jobs().FindByID(ctx, jobID)
	if err != nil {
		return apperr.Wrap(apperr.KindNotFound, "coordinator.CancelJob", err)
	}

	if job.Status != types.JobRunning {
		if !job.Status.CanTransitionTo(types.JobCancelled) {
			return apperr.BusinessRule("coordinator.CancelJob", "cannot cancel job in status "+string(job.Status))
		}
		job.Status = types.JobCancelled
		job.Metadata.UpdatedAt = c.now()
		return c.store.Jobs().Save(ctx, job)
	}

	executionID := job.CurrentExecutionID
	c.mu.Lock()
	rec, ok := c.records[executionID]
	if !ok {
		c.mu.Unlock()
		return apperr.NotFound("coordinator.CancelJob", executionID)
	}
	waiter := make(chan protocol.ExecutionResult, 1)
	c.cancelSubs[executionID] = waiter
	c.mu.Unlock()

	_ = c.dispatcher.Send(ctx, rec.WorkerID, protocol.Envelope{
		Kind:    protocol.KindCancelExecution,
		Payload: protocol.CancelExecution{ExecutionID: executionID, Reason: "user requested cancellation"},
	})

	select {
	case <-waiter:
		// HandleResult already ran finishExecutionLocked and moved the job to
		// whatever terminal (or retried) status the worker legitimately
		// reached; that satisfies the cancellation contract without
		// overwriting a state the status machine would otherwise reject.
		return nil
	case <-time.After(c.gracePeriod):
		c.mu.Lock()
		delete(c.cancelSubs, executionID)
		delete(c.records, executionID)
		c.mu.Unlock()
		return c.forceTerminate(ctx, jobID, rec)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) forceCancelled(ctx context.Context, jobID string) error {
	job, err := c.store.Jobs().FindByID(ctx, jobID)
	if err != nil {
		return apperr.Internal("coordinator.forceCancelled", err)
	}
	job.Status = types.JobCancelled
	job.Metadata.UpdatedAt = c.now()
	return c.store.Jobs().Save(ctx, job)
}

// forceTerminate drives the instance manager to TERMINATED when the
// worker never answered CancelExecution within gracePeriod (§4.6).
func (c *Coordinator) forceTerminate(ctx context.Context, jobID string, rec dispatchRecord) error {
	if err := c.factory.DestroyWorker(ctx, rec.WorkerID); err != nil {
		c.logger.Warn().Err(err).Str("worker_id", rec.WorkerID).Msg("forced termination failed")
	}
	return c.forceCancelled(ctx, jobID)
}

func (c *Coordinator) handleDispatchFailureLocked(ctx context.Context, qj types.QueuedJob, job types.Job, cause error) error {
	now := c.now()

	if c.shouldRetry(job, qj.RetryCount, cause) {
		job.Status = types.JobQueued
		job.Metadata.UpdatedAt = now
		if err := c.store.Jobs().Save(ctx, job); err != nil {
			return apperr.Internal("coordinator.handleDispatchFailureLocked", err)
		}
		delay := job.Retry.Delay(qj.RetryCount)
		c.pending = append(c.pending, pendingRetry{Job: job, Reqs: qj.Requirements, ReadyAt: now.Add(delay)})
		metrics.RetriesTotal.Inc()
		return nil
	}

	job.Status = types.JobFailed
	job.CompletedAt = &now
	job.Metadata.UpdatedAt = now
	if err := c.store.Jobs().Save(ctx, job); err != nil {
		return apperr.Internal("coordinator.handleDispatchFailureLocked", err)
	}
	metrics.ExecutionsTotal.WithLabelValues("failed").Inc()
	c.bus.Publish(events.Event{Kind: events.JobFailed, JobID: job.ID, Message: cause.Error()})
	return nil
}
