// Package types holds the orchestration engine's data model (spec §3):
// Job, QueuedJob, ResourcePool, WorkerInstance, WorkerSession, Artifact,
// Execution and the domain events that describe transitions between them.
// Identifiers are opaque strings (pkg/ids mints them); nothing in this
// package interprets their contents.
package types

import "time"

// JobStatus is the job lifecycle state (§3). Transitions are validated by
// Job.CanTransitionTo, not by callers.
type JobStatus string

const (
	JobPending   JobStatus = "PENDING"
	JobQueued    JobStatus = "QUEUED"
	JobRunning   JobStatus = "RUNNING"
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
	JobCancelled JobStatus = "CANCELLED"
)

// jobTransitions enumerates the allowed edges from §3. RUNNING->QUEUED
// exists solely for retry re-admission.
var jobTransitions = map[JobStatus]map[JobStatus]bool{
	JobPending:   {JobQueued: true, JobCancelled: true},
	JobQueued:    {JobRunning: true, JobCancelled: true},
	JobRunning:   {JobCompleted: true, JobFailed: true, JobCancelled: true, JobQueued: true},
	JobFailed:    {JobQueued: true},
	JobCompleted: {},
	JobCancelled: {},
}

// CanTransitionTo reports whether moving from s to next is allowed by §3.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	allowed, ok := jobTransitions[s]
	if !ok {
		return false
	}
	return allowed[next]
}

// Terminal reports whether s is a terminal job status.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobCancelled
}

// JobContentKind tags the Job.Content variant.
type JobContentKind string

const (
	ContentShellCommands JobContentKind = "shell-commands"
	ContentScript        JobContentKind = "script"
)

// JobContent is the tagged {shell-commands | script} variant from §3.
// Exactly one of Commands or Script should be set, matching Kind.
type JobContent struct {
	Kind     JobContentKind `json:"kind" validate:"required,oneof=shell-commands script"`
	Commands []string       `json:"commands,omitempty"`
	Script   string         `json:"script,omitempty"`
	Timeout  *time.Duration `json:"timeout,omitempty"`
}

// RetryPolicy controls job retry behavior (§3, §4.8).
type RetryPolicy struct {
	MaxRetries        int           `json:"maxRetries" validate:"gte=0"`
	BaseDelay         time.Duration `json:"baseDelay"`
	BackoffMultiplier float64       `json:"backoffMultiplier" validate:"gte=1"`
	RetryOnFailure    bool          `json:"retryOnFailure"`
}

// Delay returns the backoff delay for the given zero-based retry attempt:
// baseDelay * multiplier^attempt (§4.8 scenario 7, glossary "Backoff").
func (r RetryPolicy) Delay(attempt int) time.Duration {
	d := float64(r.BaseDelay)
	for i := 0; i < attempt; i++ {
		d *= r.BackoffMultiplier
	}
	return time.Duration(d)
}

// JobMetadata tracks provenance, separate from lifecycle timestamps.
type JobMetadata struct {
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
}

// Job is the §3 Job aggregate.
type Job struct {
	ID                string            `json:"id" validate:"required"`
	Name              string            `json:"name" validate:"required"`
	Content           JobContent        `json:"content" validate:"required"`
	Parameters        map[string]string `json:"parameters,omitempty"`
	TargetPoolID      string            `json:"targetPoolId,omitempty"`
	Priority          int               `json:"priority" validate:"gte=1,lte=1000"`
	Retry             RetryPolicy       `json:"retry"`
	Labels            map[string]string `json:"labels,omitempty"`
	Metadata          JobMetadata       `json:"metadata"`
	ScheduledAt       *time.Time        `json:"scheduledAt,omitempty"`
	Deadline          *time.Time        `json:"deadline,omitempty"`
	EstimatedDuration *time.Duration    `json:"estimatedDuration,omitempty"`
	CurrentExecutionID string           `json:"currentExecutionId,omitempty"`
	StartedAt         *time.Time        `json:"startedAt,omitempty"`
	CompletedAt       *time.Time        `json:"completedAt,omitempty"`
	Status            JobStatus         `json:"status"`
}

// DefaultPriority is used when a job is admitted without an explicit one.
const DefaultPriority = 500

// ResourceRequirements is the §4.1 cpu/memory/max-jobs requirement set
// attached to a QueuedJob.
type ResourceRequirements struct {
	CPU      float64 `json:"cpu"`
	MemoryMi string  `json:"memory"`
	MaxJobs  int     `json:"maxJobs,omitempty"`
}

// QueuedJobStatus is the §3 QueuedJob status.
type QueuedJobStatus string

const (
	QueuedWaiting     QueuedJobStatus = "WAITING"
	QueuedDispatching QueuedJobStatus = "DISPATCHING"
	QueuedExpired     QueuedJobStatus = "EXPIRED"
	QueuedRetrying    QueuedJobStatus = "RETRYING"
)

// QueuedJob wraps a Job with queue-specific bookkeeping (§3).
type QueuedJob struct {
	Job               Job
	QueuedAt          time.Time
	RetryCount        int
	MaxRetries        int
	Deadline          *time.Time
	EstimatedDuration *time.Duration
	Requirements      ResourceRequirements
	WorkerAffinity    map[string]string
	Status            QueuedJobStatus
}

// Expired reports whether the job's deadline has passed (§3, §4.1).
func (q QueuedJob) Expired(now time.Time) bool {
	return q.Deadline != nil && q.Deadline.Before(now)
}

// CandidateWorker is a worker eligible to receive the next job: IDLE or
// BUSY-but-below-capacity, matching the job's affinity labels (glossary).
type CandidateWorker struct {
	WorkerID        string
	Labels          map[string]string
	ActiveJobs      int
	MaxConcurrentJobs int
}

// HasCapacity reports whether the candidate can accept another job.
func (c CandidateWorker) HasCapacity() bool {
	return c.ActiveJobs < c.MaxConcurrentJobs
}

// MatchesAffinity reports whether c carries every label the job requires.
func (c CandidateWorker) MatchesAffinity(required map[string]string) bool {
	for k, v := range required {
		if c.Labels[k] != v {
			return false
		}
	}
	return true
}

// PoolStatus is the §3 ResourcePool status.
type PoolStatus string

const (
	PoolInactive PoolStatus = "INACTIVE"
	PoolActive   PoolStatus = "ACTIVE"
	PoolDraining PoolStatus = "DRAINING"
	PoolFailed   PoolStatus = "FAILED"
)

// ResourcePool is the §3 ResourcePool aggregate.
type ResourcePool struct {
	ID         string            `json:"id"`
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Status     PoolStatus        `json:"status"`
	MaxWorkers int               `json:"maxWorkers"`
	MaxJobs    *int              `json:"maxJobs,omitempty"`
	Labels     map[string]string `json:"labels,omitempty"`
	System     bool              `json:"system"`
	CreatedAt  time.Time         `json:"createdAt"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// DefaultPoolName is the system-wide default pool's name (§3, §4.2).
const DefaultPoolName = "default"

// ResourcePoolUtilization is produced by a resource-monitor and consumed
// by the placement scheduler (§3, §4.3).
type ResourcePoolUtilization struct {
	PoolID          string
	TotalCPU        float64
	UsedCPU         float64
	TotalMemoryBytes int64
	UsedMemoryBytes  int64
	RunningJobs     int
	SampledAt       time.Time
}

// FreeCPU and FreeMemoryBytes report remaining capacity.
func (u ResourcePoolUtilization) FreeCPU() float64 { return u.TotalCPU - u.UsedCPU }
func (u ResourcePoolUtilization) FreeMemoryBytes() int64 {
	return u.TotalMemoryBytes - u.UsedMemoryBytes
}

// Load is max(cpuUsed/cpuTotal, memUsed/memTotal), used by the leastloaded
// strategy (§4.3 scenario 5).
func (u ResourcePoolUtilization) Load() float64 {
	cpuLoad := 0.0
	if u.TotalCPU > 0 {
		cpuLoad = u.UsedCPU / u.TotalCPU
	}
	memLoad := 0.0
	if u.TotalMemoryBytes > 0 {
		memLoad = float64(u.UsedMemoryBytes) / float64(u.TotalMemoryBytes)
	}
	if cpuLoad > memLoad {
		return cpuLoad
	}
	return memLoad
}

// Fits reports whether the utilization snapshot has room for req, also
// checking req.MaxJobs against RunningJobs when set.
func (u ResourcePoolUtilization) Fits(req ResourceRequirements, memBytes int64) bool {
	if u.FreeCPU() < req.CPU {
		return false
	}
	if u.FreeMemoryBytes() < memBytes {
		return false
	}
	if req.MaxJobs > 0 && u.RunningJobs >= req.MaxJobs {
		return false
	}
	return true
}

// InstanceType is the worker instance size tier (§3, §4.5).
type InstanceType string

const (
	InstanceSmall  InstanceType = "SMALL"
	InstanceMedium InstanceType = "MEDIUM"
	InstanceLarge  InstanceType = "LARGE"
	InstanceXLarge InstanceType = "XLARGE"
	InstanceCustom InstanceType = "CUSTOM"
)

// InstanceStatus is the §3 WorkerInstance status.
type InstanceStatus string

const (
	InstanceProvisioning InstanceStatus = "PROVISIONING"
	InstanceRunning      InstanceStatus = "RUNNING"
	InstanceStopping     InstanceStatus = "STOPPING"
	InstanceStopped      InstanceStatus = "STOPPED"
	InstanceFailed       InstanceStatus = "FAILED"
	InstanceTerminated   InstanceStatus = "TERMINATED"
)

// WorkerInstance is the §3 WorkerInstance aggregate, owned exclusively by
// the worker factory (C6) once provisioned.
type WorkerInstance struct {
	WorkerID      string
	PoolID        string
	PoolType      string
	InstanceType  InstanceType
	Status        InstanceStatus
	Metadata      map[string]string
	CreatedAt     time.Time
	LastUpdatedAt time.Time
}

// ConnectionState is the §3/§4.6 per-worker session connection state.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "CONNECTING"
	StateRegistered    ConnectionState = "REGISTERED"
	StateIdle          ConnectionState = "IDLE"
	StateBusy          ConnectionState = "BUSY"
	StateDraining      ConnectionState = "DRAINING"
	StateDisconnected  ConnectionState = "DISCONNECTED"
)

// sessionTransitions enumerates the allowed edges from §4.6. CONNECTED is
// modeled as CONNECTING here (a freshly dialed, not-yet-registered stream).
var sessionTransitions = map[ConnectionState]map[ConnectionState]bool{
	StateConnecting:  {StateRegistered: true, StateDisconnected: true},
	StateRegistered:  {StateIdle: true, StateDisconnected: true},
	StateIdle:        {StateBusy: true, StateDraining: true, StateDisconnected: true},
	StateBusy:        {StateIdle: true, StateDraining: true, StateDisconnected: true},
	StateDraining:    {StateDisconnected: true, StateIdle: true},
	StateDisconnected: {},
}

// CanTransitionTo reports whether moving from s to next is allowed by §4.6.
func (s ConnectionState) CanTransitionTo(next ConnectionState) bool {
	allowed, ok := sessionTransitions[s]
	if !ok {
		return false
	}
	return allowed[next]
}

// WorkerSession is the §3 WorkerSession aggregate.
type WorkerSession struct {
	WorkerID           string
	ConnectTime        time.Time
	LastHeartbeat      time.Time
	State              ConnectionState
	CurrentExecutionID string
	Capabilities       map[string]string
}

// CompressionKind is the §3/§4.7 artifact compression tag.
type CompressionKind string

const (
	CompressionNone CompressionKind = "NONE"
	CompressionGzip CompressionKind = "GZIP"
	CompressionZstd CompressionKind = "ZSTD"
)

// ArtifactKind is the §3 artifact type tag.
type ArtifactKind string

const (
	ArtifactLibrary ArtifactKind = "LIBRARY"
	ArtifactDataset ArtifactKind = "DATASET"
	ArtifactConfig  ArtifactKind = "CONFIG"
	ArtifactResource ArtifactKind = "RESOURCE"
	ArtifactImage   ArtifactKind = "IMAGE"
	ArtifactArchive ArtifactKind = "ARCHIVE"
)

// Artifact is the §3 cache-entry aggregate. The stored bytes, decompressed,
// must hash to Checksum; Size is the uncompressed byte length.
type Artifact struct {
	ArtifactID   string
	Checksum     string
	Size         int64
	Compression  CompressionKind
	OriginalSize int64
	CachedAt     time.Time
	Type         ArtifactKind
	Data         []byte
}

// ExecutionStatus is the §3 Execution status.
type ExecutionStatus string

const (
	ExecStarting  ExecutionStatus = "STARTING"
	ExecRunning   ExecutionStatus = "RUNNING"
	ExecCompleted ExecutionStatus = "COMPLETED"
	ExecFailed    ExecutionStatus = "FAILED"
	ExecCancelled ExecutionStatus = "CANCELLED"
)

// Execution is the §3 Execution aggregate, created when an assignment is
// dispatched.
type Execution struct {
	ID          string
	JobID       string
	WorkerID    string
	StartedAt   time.Time
	CompletedAt *time.Time
	ExitCode    int
	Status      ExecutionStatus
	LogSinkRef  string
}

// AuditLog is a repository-contract aggregate (§4.10) recording a single
// state-changing operation for later inspection, independent of the
// transient domain events on the event bus.
type AuditLog struct {
	ID        string            `json:"id"`
	Actor     string            `json:"actor,omitempty"`
	Action    string            `json:"action"`
	TargetID  string            `json:"targetId,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Template is a repository-contract aggregate (§4.10): a reusable Job
// shape that admission can clone into a concrete Job, keyed by name.
type Template struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Content   JobContent        `json:"content"`
	Defaults  map[string]string `json:"defaults,omitempty"`
	Retry     RetryPolicy       `json:"retry"`
	Labels    map[string]string `json:"labels,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}
