/*
Package coordinator implements the execution coordinator (C9): the single
loop tying the job queue (C2), placement scheduler (C4), worker factory
(C6) and worker sessions (C7) together, end to end.

DispatchNext performs one admission cycle: pull the highest-ranked
eligible job, place it on a pool, reuse an IDLE worker on that pool or
provision a fresh one, create an Execution, transition the job to
RUNNING, and send ExecutionAssignment on the worker's session.
HandleResult consumes the worker's terminal ExecutionResult, applies the
retry/backoff policy on failure, and releases or retains the worker per
the configured reuse window. Run drives DispatchNext on a tick, coalescing
concurrent invocations behind a single mutex (§5: "the coordinator loop is
single-flight").

CancelJob implements the §4.6 cancellation contract: it sends
CancelExecution and waits up to gracePeriod for a terminal result before
forcing termination through the worker factory.
*/
package coordinator
