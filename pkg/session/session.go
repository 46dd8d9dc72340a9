// Package session implements the per-worker connection state machine
// (C7): CONNECTING -> REGISTERED -> IDLE <-> BUSY -> (DRAINING) ->
// DISCONNECTED, plus heartbeat-based disconnect detection.
package session

import (
	"sync"
	"time"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/ids"
	"github.com/hodei-pipelines/orchestrator/pkg/types"
)

// defaultHeartbeatInterval matches the §4.6 RegistrationResponse default.
const defaultHeartbeatInterval = 30 * time.Second

// missedHeartbeatFactor is the §4.6 disconnect threshold: more than 3x the
// heartbeat interval without a heartbeat disconnects the session.
const missedHeartbeatFactor = 3

// Registry tracks every connected worker session, keyed by worker id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*types.WorkerSession
	now      func() time.Time
}

// New constructs an empty session Registry.
func New() *Registry {
	return &Registry{sessions: make(map[string]*types.WorkerSession), now: time.Now}
}

// Connect registers a new session in CONNECTING state for workerID. If a
// session for workerID already exists (§3: "a new registration with an
// existing id displaces the prior session"), the prior session is
// transitioned to DISCONNECTED and replaced.
func (r *Registry) Connect(workerID string) (*types.WorkerSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prior, exists := r.sessions[workerID]; exists {
		prior.State = types.StateDisconnected
		delete(r.sessions, workerID)
	}

	s := &types.WorkerSession{
		WorkerID:    workerID,
		ConnectTime: r.now(),
		State:       types.StateConnecting,
	}
	r.sessions[workerID] = s
	return s, nil
}

// Register moves a session CONNECTING -> REGISTERED on a valid
// RegistrationRequest, recording its capabilities (§4.6). workerName
// uniqueness within a pool is enforced by the caller, which owns the
// pool-scoped namespace.
func (r *Registry) Register(workerID string, capabilities map[string]string) error {
	return r.transition(workerID, types.StateRegistered, func(s *types.WorkerSession) {
		s.Capabilities = capabilities
		s.LastHeartbeat = r.now()
	})
}

// MarkIdle moves a session to IDLE, either immediately after
// RegistrationResponse is sent, or after BUSY completes an execution.
func (r *Registry) MarkIdle(workerID string) error {
	return r.transition(workerID, types.StateIdle, func(s *types.WorkerSession) {
		s.CurrentExecutionID = ""
	})
}

// AssignExecution moves a session IDLE -> BUSY for the given execution id.
func (r *Registry) AssignExecution(workerID, executionID string) error {
	return r.transition(workerID, types.StateBusy, func(s *types.WorkerSession) {
		s.CurrentExecutionID = executionID
	})
}

// Drain moves a session to DRAINING on a scale-down signal; a BUSY worker
// finishes its current execution before disconnecting, and receives no
// further assignments (§4.6).
func (r *Registry) Drain(workerID string) error {
	return r.transition(workerID, types.StateDraining, nil)
}

// Disconnect moves a session to DISCONNECTED and removes it from the
// registry, on transport failure, missed heartbeats, or explicit
// shutdown (§4.6).
func (r *Registry) Disconnect(workerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[workerID]
	if !ok {
		return apperr.NotFound("session.Disconnect", workerID)
	}
	if !s.State.CanTransitionTo(types.StateDisconnected) {
		return apperr.BusinessRule("session.Disconnect", "invalid transition from "+string(s.State)+" to DISCONNECTED")
	}
	delete(r.sessions, workerID)
	return nil
}

// RecordHeartbeat stamps LastHeartbeat for an active session.
func (r *Registry) RecordHeartbeat(workerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[workerID]
	if !ok {
		return apperr.NotFound("session.RecordHeartbeat", workerID)
	}
	s.LastHeartbeat = r.now()
	return nil
}

// SweepDisconnects removes every session whose last heartbeat is older
// than missedHeartbeatFactor times interval (§4.6), returning the ids
// disconnected.
func (r *Registry) SweepDisconnects(interval time.Duration) []string {
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	threshold := time.Duration(missedHeartbeatFactor) * interval

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var disconnected []string
	for id, s := range r.sessions {
		if s.State == types.StateConnecting {
			continue // not yet registered, no heartbeat expected
		}
		if now.Sub(s.LastHeartbeat) > threshold {
			delete(r.sessions, id)
			disconnected = append(disconnected, id)
		}
	}
	return disconnected
}

// Get returns a copy of the session tracked for workerID.
func (r *Registry) Get(workerID string) (types.WorkerSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[workerID]
	if !ok {
		return types.WorkerSession{}, false
	}
	return *s, true
}

// IdleWorkers returns the sessions currently in the IDLE state; BUSY
// sessions are not included, since the session itself does not track
// concurrency limits.
func (r *Registry) IdleWorkers() []types.WorkerSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []types.WorkerSession
	for _, s := range r.sessions {
		if s.State == types.StateIdle {
			out = append(out, *s)
		}
	}
	return out
}

// StateCounts implements metrics.SessionStatsProvider.
func (r *Registry) StateCounts() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[string]int)
	for _, s := range r.sessions {
		counts[string(s.State)]++
	}
	return counts
}

func (r *Registry) transition(workerID string, next types.ConnectionState, mutate func(*types.WorkerSession)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[workerID]
	if !ok {
		return apperr.NotFound("session.transition", workerID)
	}
	if !s.State.CanTransitionTo(next) {
		return apperr.BusinessRule("session.transition", "invalid transition from "+string(s.State)+" to "+string(next))
	}
	s.State = next
	if mutate != nil {
		mutate(s)
	}
	return nil
}

// NewSessionToken mints an opaque token for a freshly registered session.
func NewSessionToken() string {
	return ids.Token()
}
