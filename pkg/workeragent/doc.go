/*
Package workeragent is the reference implementation of the worker side of
the session protocol (C7): it registers with the orchestrator over a
Transport, heartbeats on an interval, executes assigned jobs through an
Executor, streams their output back as LogChunk envelopes, and honors
CancelExecution requests by cancelling the assignment's context.

LocalExecutor runs ExecutionDefinitions as /bin/sh -c child processes; a
production worker binary wires Agent to a gRPC-backed Transport and
LocalExecutor, then calls Run.
*/
package workeragent
