// Package storage implements the repository contracts (C11): a
// save/findById/list/delete interface per persisted aggregate (Job,
// QueuedJob, ResourcePool, Execution, AuditLog, Template) plus the
// mTLS certificate-authority blob carried over from the teacher.
//
// Three realizations share the Store interface: MemoryStore (required for
// tests), BoltStore (adapted from the teacher's BoltDB-backed store, one
// bucket per aggregate), and PostgresStore (sqlx over pgx, production-grade
// for Job/Execution/ResourcePool; the remaining aggregates delegate to an
// embedded MemoryStore). RedisTokenStore is a separate, narrower contract
// for the worker-session token issued at registration.
package storage
