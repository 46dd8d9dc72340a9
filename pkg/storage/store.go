// Package storage implements the repository contracts (C11): one
// save/findById/list/delete-shaped interface per persisted aggregate (Job,
// QueuedJob, ResourcePool, Execution, AuditLog, Template), plus a CA-blob
// store carried over from the teacher's certificate-authority persistence.
// All realizations return value types, never pointers into internal state.
package storage

import (
	"context"
	"errors"

	"github.com/hodei-pipelines/orchestrator/pkg/types"
)

// ErrNotFound is returned by findById/findByName when no record matches.
var ErrNotFound = errors.New("storage: not found")

// ErrConflict is returned by save/update when a uniqueness index (pool
// name, one-QueuedJob-per-job-id) would be violated.
var ErrConflict = errors.New("storage: conflict")

// JobRepository persists the Job aggregate.
type JobRepository interface {
	Save(ctx context.Context, job types.Job) error
	FindByID(ctx context.Context, id string) (types.Job, error)
	List(ctx context.Context) ([]types.Job, error)
	ListByStatus(ctx context.Context, status types.JobStatus) ([]types.Job, error)
	Delete(ctx context.Context, id string) error
}

// QueuedJobRepository persists the QueuedJob aggregate, keyed by the
// underlying Job's ID (the one-QueuedJob-per-job-id index from §4.10).
type QueuedJobRepository interface {
	Save(ctx context.Context, qj types.QueuedJob) error
	FindByJobID(ctx context.Context, jobID string) (types.QueuedJob, error)
	List(ctx context.Context) ([]types.QueuedJob, error)
	ListByStatus(ctx context.Context, status types.QueuedJobStatus) ([]types.QueuedJob, error)
	Delete(ctx context.Context, jobID string) error
}

// ResourcePoolRepository persists the ResourcePool aggregate, keyed by ID
// with a secondary uniqueness index on Name (§4.2, §4.10).
type ResourcePoolRepository interface {
	Save(ctx context.Context, pool types.ResourcePool) error
	FindByID(ctx context.Context, id string) (types.ResourcePool, error)
	FindByName(ctx context.Context, name string) (types.ResourcePool, error)
	FindActive(ctx context.Context) ([]types.ResourcePool, error)
	FindByLabel(ctx context.Context, key, value string) ([]types.ResourcePool, error)
	List(ctx context.Context) ([]types.ResourcePool, error)
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}

// ExecutionRepository persists the Execution aggregate.
type ExecutionRepository interface {
	Save(ctx context.Context, exec types.Execution) error
	FindByID(ctx context.Context, id string) (types.Execution, error)
	ListByJobID(ctx context.Context, jobID string) ([]types.Execution, error)
	Delete(ctx context.Context, id string) error
}

// AuditLogRepository persists AuditLog entries, append-mostly.
type AuditLogRepository interface {
	Save(ctx context.Context, entry types.AuditLog) error
	FindByID(ctx context.Context, id string) (types.AuditLog, error)
	List(ctx context.Context) ([]types.AuditLog, error)
	ListByTarget(ctx context.Context, targetID string) ([]types.AuditLog, error)
	Delete(ctx context.Context, id string) error
}

// TemplateRepository persists the Template aggregate, keyed by ID with a
// secondary uniqueness index on Name.
type TemplateRepository interface {
	Save(ctx context.Context, tmpl types.Template) error
	FindByID(ctx context.Context, id string) (types.Template, error)
	FindByName(ctx context.Context, name string) (types.Template, error)
	List(ctx context.Context) ([]types.Template, error)
	Delete(ctx context.Context, id string) error
}

// CAStore persists the single mTLS certificate authority blob, carried over
// from the teacher's certificate-authority persistence (pkg/security).
type CAStore interface {
	SaveCA(ctx context.Context, data []byte) error
	GetCA(ctx context.Context) ([]byte, error)
}

// Store aggregates every repository contract behind one handle so a
// realization (in-memory, boltdb, postgres) only needs one constructor.
type Store interface {
	Jobs() JobRepository
	QueuedJobs() QueuedJobRepository
	ResourcePools() ResourcePoolRepository
	Executions() ExecutionRepository
	AuditLogs() AuditLogRepository
	Templates() TemplateRepository
	CAStore
	Close() error
}
