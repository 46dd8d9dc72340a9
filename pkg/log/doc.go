// Package log provides structured logging for the orchestration engine
// using zerolog. It wraps a single global logger with JSON or console
// output and helpers for attaching job/pool/worker/execution context to a
// child logger, e.g.:
//
//	jobLog := log.WithJobID(job.ID)
//	jobLog.Info().Str("pool_id", pool.ID).Msg("job queued")
//
// Init must be called once at process start before any logging happens.
package log
