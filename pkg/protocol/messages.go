// Package protocol defines the worker session wire protocol (C7): the
// eleven message kinds exchanged over the bidirectional control stream,
// wrapped in an Envelope and framed by a custom grpc codec (see codec.go).
package protocol

import "time"

// Kind tags an Envelope's payload type.
type Kind string

const (
	// Worker -> orchestrator.
	KindRegistrationRequest Kind = "REGISTRATION_REQUEST"
	KindHeartbeat           Kind = "HEARTBEAT"
	KindStatusUpdate        Kind = "STATUS_UPDATE"
	KindLogChunk            Kind = "LOG_CHUNK"
	KindExecutionResult     Kind = "EXECUTION_RESULT"
	KindArtifactCacheQuery  Kind = "ARTIFACT_CACHE_QUERY"

	// Orchestrator -> worker.
	KindRegistrationResponse Kind = "REGISTRATION_RESPONSE"
	KindExecutionAssignment  Kind = "EXECUTION_ASSIGNMENT"
	KindCancelExecution      Kind = "CANCEL_EXECUTION"
	KindArtifactChunk        Kind = "ARTIFACT_CHUNK"
	KindArtifactCacheResponse Kind = "ARTIFACT_CACHE_RESPONSE"
)

// Envelope wraps every message crossing the session stream (§4.6).
type Envelope struct {
	Kind    Kind
	Payload interface{}
}

// EventType is the §4.6 StatusUpdate event vocabulary.
type EventType string

const (
	EventStageStarted       EventType = "STAGE_STARTED"
	EventStepStarted        EventType = "STEP_STARTED"
	EventStepCompleted      EventType = "STEP_COMPLETED"
	EventStageCompleted     EventType = "STAGE_COMPLETED"
	EventExecutionStarted   EventType = "EXECUTION_STARTED"
	EventExecutionCompleted EventType = "EXECUTION_COMPLETED"
	EventExecutionFailed    EventType = "EXECUTION_FAILED"
)

// LogStream is the §4.6 LogChunk stream tag.
type LogStream string

const (
	StreamStdout LogStream = "STDOUT"
	StreamStderr LogStream = "STDERR"
)

// RegistrationRequest is sent once, at CONNECTING, to move a session to
// REGISTERED (§4.6).
type RegistrationRequest struct {
	WorkerName        string
	Capabilities      map[string]string
	MaxConcurrentJobs int
}

// Heartbeat is sent on the configured interval to keep a session alive.
type Heartbeat struct {
	Status     string
	ActiveJobs int
	Timestamp  time.Time
}

// StatusUpdate reports execution progress.
type StatusUpdate struct {
	ExecutionID string
	EventType   EventType
	Message     string
}

// LogChunk carries a slice of an execution's stdout/stderr.
type LogChunk struct {
	ExecutionID string
	Stream      LogStream
	Bytes       []byte
	Sequence    int
}

// ExecutionResult reports a finished execution.
type ExecutionResult struct {
	ExecutionID string
	Success     bool
	ExitCode    int
	Details     string
}

// ArtifactCacheQuery asks the orchestrator which of a job's artifacts the
// worker already has cached locally.
type ArtifactCacheQuery struct {
	JobID       string
	ArtifactIDs []string
}

// RegistrationResponse completes registration and issues a session token.
type RegistrationResponse struct {
	Success                 bool
	Message                 string
	SessionToken            string
	HeartbeatIntervalSeconds int
}

// ExecutionDefinition is the §4.6 ExecutionAssignment payload's definition
// union: exactly one of Shell or Script is set.
type ExecutionDefinition struct {
	Shell  []string
	Script string
}

// ExecutionAssignment dispatches work to an IDLE worker, transitioning it
// to BUSY.
type ExecutionAssignment struct {
	ExecutionID string
	Definition  ExecutionDefinition
	EnvVars     map[string]string
}

// CancelExecution asks a worker to abort its current execution.
type CancelExecution struct {
	ExecutionID string
	Reason      string
}

// ArtifactChunk carries one frame of a chunked artifact transfer (§4.7).
type ArtifactChunk struct {
	ArtifactID   string
	Data         []byte
	Sequence     int
	IsLast       bool
	Compression  string
	OriginalSize int64
	Checksum     string
}

// ArtifactCacheResponse answers an ArtifactCacheQuery.
type ArtifactCacheResponse struct {
	JobID   string
	Cached  []string
	Missing []string
}
