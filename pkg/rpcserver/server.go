// Package rpcserver is the server-side half of the worker session stream
// (C7): it accepts the single long-lived Session RPC each worker opens,
// drives that worker through session.Registry's state machine, and relays
// its StatusUpdate/LogChunk/ExecutionResult traffic into the coordinator.
// It also implements coordinator.Dispatcher by remembering each worker's
// live stream.
package rpcserver

import (
	"context"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/log"
	"github.com/hodei-pipelines/orchestrator/pkg/protocol"
	"github.com/hodei-pipelines/orchestrator/pkg/session"
)

// Coordinator is the subset of *coordinator.Coordinator the server drives
// worker traffic into; narrowed to a port so this package never imports
// coordinator's own collaborators.
type Coordinator interface {
	RelayStatus(ctx context.Context, workerID string, update protocol.StatusUpdate)
	RelayLogChunk(ctx context.Context, chunk protocol.LogChunk) error
	HandleResult(ctx context.Context, workerID string, result protocol.ExecutionResult) error
	HandleWorkerDisconnected(ctx context.Context, workerID string) error
}

// Server accepts worker Session streams and owns their lifetime.
type Server struct {
	sessions *session.Registry
	logger   zerolog.Logger

	mu          sync.RWMutex
	coordinator Coordinator
	streams     map[string]grpc.ServerStream // workerID -> live stream
}

// New builds a Server over its collaborators. coordinator may be nil at
// construction time and filled in later with SetCoordinator — Server and
// Coordinator are mutually dependent (Server implements
// coordinator.Dispatcher, Coordinator relays worker traffic through
// Server), so one side has to be built first.
func New(sessions *session.Registry, coordinator Coordinator) *Server {
	return &Server{
		sessions:    sessions,
		coordinator: coordinator,
		logger:      log.WithComponent("rpcserver"),
		streams:     make(map[string]grpc.ServerStream),
	}
}

// SetCoordinator wires the coordinator a Server built without one at
// construction time.
func (s *Server) SetCoordinator(coordinator Coordinator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coordinator = coordinator
}

func (s *Server) coord() Coordinator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.coordinator
}

// Register installs the hand-built Session service descriptor on grpcServer.
func (s *Server) Register(grpcServer *grpc.Server) {
	desc := protocol.ServiceDesc(s.handleSession)
	grpcServer.RegisterService(&desc, s)
}

// NewTLSServer builds a grpc.Server secured with mutual TLS, mirroring the
// teacher's manager-side server construction (pkg/api.NewServer).
func NewTLSServer(creds credentials.TransportCredentials) *grpc.Server {
	return grpc.NewServer(grpc.Creds(creds))
}

// Send implements coordinator.Dispatcher by looking up workerID's live
// stream and writing env onto it.
func (s *Server) Send(ctx context.Context, workerID string, env protocol.Envelope) error {
	s.mu.RLock()
	stream, ok := s.streams[workerID]
	s.mu.RUnlock()
	if !ok {
		return apperr.NotFound("rpcserver.Send", workerID)
	}
	if err := stream.SendMsg(&env); err != nil {
		return apperr.Wrap(apperr.KindTransport, "rpcserver.Send", err)
	}
	return nil
}

// handleSession services one worker's entire connection: registration,
// then an indefinite loop of heartbeats/status/log/result envelopes until
// the stream closes.
func (s *Server) handleSession(srv interface{}, stream grpc.ServerStream) error {
	ctx := stream.Context()

	var req protocol.Envelope
	if err := stream.RecvMsg(&req); err != nil {
		return err
	}
	regReq, ok := req.Payload.(protocol.RegistrationRequest)
	if !ok || req.Kind != protocol.KindRegistrationRequest {
		return apperr.Validation("rpcserver.handleSession", "first envelope on a session stream must be a registration request")
	}

	// Connect displaces any prior session for this worker id (§3), so a
	// stale stream may still be running handleSession for the same id.
	workerID := regReq.WorkerName
	if _, err := s.sessions.Connect(workerID); err != nil {
		return err
	}

	s.mu.Lock()
	s.streams[workerID] = stream
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		current, stillCurrent := s.streams[workerID]
		stillCurrent = stillCurrent && current == stream
		if stillCurrent {
			delete(s.streams, workerID)
		}
		s.mu.Unlock()
		// Only tear down the session/notify the coordinator if no newer
		// connection for this worker id has since displaced this stream;
		// otherwise this cleanup would wipe out the live replacement.
		if stillCurrent {
			_ = s.sessions.Disconnect(workerID)
			_ = s.coord().HandleWorkerDisconnected(context.Background(), workerID)
		}
	}()

	if err := s.sessions.Register(workerID, regReq.Capabilities); err != nil {
		return err
	}
	resp := protocol.RegistrationResponse{
		Success:                  true,
		SessionToken:             session.NewSessionToken(),
		HeartbeatIntervalSeconds: 30,
	}
	if err := stream.SendMsg(&protocol.Envelope{Kind: protocol.KindRegistrationResponse, Payload: resp}); err != nil {
		return err
	}
	if err := s.sessions.MarkIdle(workerID); err != nil {
		return err
	}

	for {
		var env protocol.Envelope
		if err := stream.RecvMsg(&env); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		switch env.Kind {
		case protocol.KindHeartbeat:
			if err := s.sessions.RecordHeartbeat(workerID); err != nil {
				s.logger.Warn().Err(err).Str("worker_id", workerID).Msg("heartbeat for unknown session")
			}
		case protocol.KindStatusUpdate:
			update, ok := env.Payload.(protocol.StatusUpdate)
			if ok {
				s.coord().RelayStatus(ctx, workerID, update)
			}
		case protocol.KindLogChunk:
			chunk, ok := env.Payload.(protocol.LogChunk)
			if ok {
				if err := s.coord().RelayLogChunk(ctx, chunk); err != nil {
					s.logger.Warn().Err(err).Str("worker_id", workerID).Msg("log relay failed")
				}
			}
		case protocol.KindExecutionResult:
			result, ok := env.Payload.(protocol.ExecutionResult)
			if ok {
				if err := s.coord().HandleResult(ctx, workerID, result); err != nil {
					s.logger.Warn().Err(err).Str("worker_id", workerID).Msg("result handling failed")
				}
			}
		default:
			s.logger.Debug().Str("kind", string(env.Kind)).Msg("unhandled envelope kind")
		}
	}
}
