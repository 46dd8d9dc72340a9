// Package workeragent implements the worker-side half of the session
// protocol (C7): register, heartbeat, execute assigned jobs, stream their
// output back, and honor cancellation — the reference agent a provisioned
// worker instance runs, adapted from the teacher's container-executor
// worker loop to execute shell commands/scripts instead of containers.
package workeragent

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/ids"
	"github.com/hodei-pipelines/orchestrator/pkg/log"
	"github.com/hodei-pipelines/orchestrator/pkg/protocol"
)

// DefaultHeartbeatInterval matches the session registry's own default
// heartbeat cadence assumption (pkg/session).
const DefaultHeartbeatInterval = 30 * time.Second

// Transport is the worker's view of the session stream: a bidirectional
// channel of Envelopes to/from the orchestrator. The concrete realization
// is a gRPC client stream; Agent only depends on this narrow port.
type Transport interface {
	Send(ctx context.Context, env protocol.Envelope) error
	Recv(ctx context.Context) (protocol.Envelope, error)
}

// Config configures an Agent.
type Config struct {
	WorkerName        string
	Capabilities      map[string]string
	MaxConcurrentJobs int
	HeartbeatInterval time.Duration
}

// Agent drives one worker's side of the session protocol against a single
// Transport. The zero value is not usable; use New.
type Agent struct {
	cfg       Config
	transport Transport
	executor  Executor
	logger    zerolog.Logger

	mu         sync.Mutex
	cancels    map[string]context.CancelFunc // executionId -> cancel
	activeJobs int
}

// New builds an Agent over transport, running jobs through executor.
func New(cfg Config, transport Transport, executor Executor) *Agent {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = 1
	}
	return &Agent{
		cfg:       cfg,
		transport: transport,
		executor:  executor,
		logger:    log.WithComponent("workeragent"),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Run registers with the orchestrator, starts the heartbeat loop, and then
// services incoming Envelopes until ctx is cancelled or the transport
// fails. It returns nil on a clean ctx cancellation.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.register(ctx); err != nil {
		return err
	}

	go a.heartbeatLoop(ctx)

	for {
		env, err := a.transport.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return apperr.Wrap(apperr.KindTransport, "workeragent.Run", err)
		}

		switch env.Kind {
		case protocol.KindExecutionAssignment:
			assignment, ok := env.Payload.(protocol.ExecutionAssignment)
			if !ok {
				a.logger.Warn().Msg("execution assignment envelope had the wrong payload type")
				continue
			}
			go a.runExecution(ctx, assignment)
		case protocol.KindCancelExecution:
			cancel, ok := env.Payload.(protocol.CancelExecution)
			if !ok {
				continue
			}
			a.cancelExecution(cancel.ExecutionID)
		default:
			a.logger.Debug().Str("kind", string(env.Kind)).Msg("unhandled envelope kind")
		}
	}
}

func (a *Agent) register(ctx context.Context) error {
	req := protocol.RegistrationRequest{
		WorkerName:        a.cfg.WorkerName,
		Capabilities:      a.cfg.Capabilities,
		MaxConcurrentJobs: a.cfg.MaxConcurrentJobs,
	}
	if err := a.transport.Send(ctx, protocol.Envelope{Kind: protocol.KindRegistrationRequest, Payload: req}); err != nil {
		return apperr.Wrap(apperr.KindTransport, "workeragent.register", err)
	}

	env, err := a.transport.Recv(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindTransport, "workeragent.register", err)
	}
	resp, ok := env.Payload.(protocol.RegistrationResponse)
	if !ok || !resp.Success {
		return apperr.BusinessRule("workeragent.register", "registration was rejected by the orchestrator")
	}
	if resp.HeartbeatIntervalSeconds > 0 {
		a.cfg.HeartbeatInterval = time.Duration(resp.HeartbeatIntervalSeconds) * time.Second
	}
	return nil
}

func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.mu.Lock()
			active := a.activeJobs
			a.mu.Unlock()
			hb := protocol.Heartbeat{Status: "IDLE", ActiveJobs: active, Timestamp: ids.Now()}
			if active > 0 {
				hb.Status = "BUSY"
			}
			if err := a.transport.Send(ctx, protocol.Envelope{Kind: protocol.KindHeartbeat, Payload: hb}); err != nil {
				a.logger.Warn().Err(err).Msg("heartbeat send failed")
			}
		}
	}
}

func (a *Agent) cancelExecution(executionID string) {
	a.mu.Lock()
	cancel, ok := a.cancels[executionID]
	a.mu.Unlock()
	if ok {
		cancel()
	}
}

func (a *Agent) runExecution(ctx context.Context, assignment protocol.ExecutionAssignment) {
	execCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancels[assignment.ExecutionID] = cancel
	a.activeJobs++
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.cancels, assignment.ExecutionID)
		a.activeJobs--
		a.mu.Unlock()
		cancel()
	}()

	a.send(ctx, protocol.StatusUpdate{ExecutionID: assignment.ExecutionID, EventType: protocol.EventExecutionStarted})

	onLog := func(stream protocol.LogStream, data []byte) {
		a.send(ctx, protocol.LogChunk{ExecutionID: assignment.ExecutionID, Stream: stream, Bytes: data})
	}

	exitCode, err := a.executor.Execute(execCtx, assignment.Definition, assignment.EnvVars, onLog)

	result := protocol.ExecutionResult{ExecutionID: assignment.ExecutionID, ExitCode: exitCode}
	if err != nil {
		result.Success = false
		result.Details = err.Error()
		a.send(ctx, protocol.StatusUpdate{ExecutionID: assignment.ExecutionID, EventType: protocol.EventExecutionFailed, Message: err.Error()})
	} else {
		result.Success = exitCode == 0
		if !result.Success {
			result.Details = "command exited with a non-zero status"
		}
		a.send(ctx, protocol.StatusUpdate{ExecutionID: assignment.ExecutionID, EventType: protocol.EventExecutionCompleted})
	}

	if sendErr := a.transport.Send(ctx, protocol.Envelope{Kind: protocol.KindExecutionResult, Payload: result}); sendErr != nil {
		a.logger.Error().Err(sendErr).Str("execution_id", assignment.ExecutionID).Msg("failed to report execution result")
	}
}

func (a *Agent) send(ctx context.Context, payload interface{}) {
	var kind protocol.Kind
	switch payload.(type) {
	case protocol.StatusUpdate:
		kind = protocol.KindStatusUpdate
	case protocol.LogChunk:
		kind = protocol.KindLogChunk
	}
	if err := a.transport.Send(ctx, protocol.Envelope{Kind: kind, Payload: payload}); err != nil {
		a.logger.Warn().Err(err).Str("kind", string(kind)).Msg("send failed")
	}
}
