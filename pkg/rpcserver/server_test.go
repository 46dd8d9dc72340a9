package rpcserver

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/hodei-pipelines/orchestrator/pkg/protocol"
	"github.com/hodei-pipelines/orchestrator/pkg/session"
)

// fakeCoordinator records relayed traffic without any of the real
// Coordinator's queue/scheduler/worker-factory wiring.
type fakeCoordinator struct {
	statuses []protocol.StatusUpdate
	results  []protocol.ExecutionResult
	disconnected []string
}

func (f *fakeCoordinator) RelayStatus(ctx context.Context, workerID string, update protocol.StatusUpdate) {
	f.statuses = append(f.statuses, update)
}

func (f *fakeCoordinator) RelayLogChunk(ctx context.Context, chunk protocol.LogChunk) error { return nil }

func (f *fakeCoordinator) HandleResult(ctx context.Context, workerID string, result protocol.ExecutionResult) error {
	f.results = append(f.results, result)
	return nil
}

func (f *fakeCoordinator) HandleWorkerDisconnected(ctx context.Context, workerID string) error {
	f.disconnected = append(f.disconnected, workerID)
	return nil
}

func startTestServer(t *testing.T) (*Server, *fakeCoordinator, *grpc.ClientConn) {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	grpcServer := grpc.NewServer()

	coord := &fakeCoordinator{}
	server := New(session.New(), coord)
	server.Register(grpcServer)

	go grpcServer.Serve(lis)
	t.Cleanup(grpcServer.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(protocol.CodecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return server, coord, conn
}

func TestSessionRegistersAndEchoesHeartbeat(t *testing.T) {
	_, _, conn := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := protocol.OpenSession(ctx, conn)
	require.NoError(t, err)

	require.NoError(t, stream.SendMsg(&protocol.Envelope{
		Kind:    protocol.KindRegistrationRequest,
		Payload: protocol.RegistrationRequest{WorkerName: "worker-1", MaxConcurrentJobs: 1},
	}))

	var resp protocol.Envelope
	require.NoError(t, stream.RecvMsg(&resp))
	assert.Equal(t, protocol.KindRegistrationResponse, resp.Kind)
	regResp := resp.Payload.(protocol.RegistrationResponse)
	assert.True(t, regResp.Success)
	assert.NotEmpty(t, regResp.SessionToken)
}

func TestSessionRelaysStatusAndResultToCoordinator(t *testing.T) {
	_, coord, conn := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := protocol.OpenSession(ctx, conn)
	require.NoError(t, err)

	require.NoError(t, stream.SendMsg(&protocol.Envelope{
		Kind:    protocol.KindRegistrationRequest,
		Payload: protocol.RegistrationRequest{WorkerName: "worker-2"},
	}))
	var resp protocol.Envelope
	require.NoError(t, stream.RecvMsg(&resp))

	require.NoError(t, stream.SendMsg(&protocol.Envelope{
		Kind:    protocol.KindStatusUpdate,
		Payload: protocol.StatusUpdate{ExecutionID: "exec-1", EventType: protocol.EventExecutionStarted},
	}))
	require.NoError(t, stream.SendMsg(&protocol.Envelope{
		Kind:    protocol.KindExecutionResult,
		Payload: protocol.ExecutionResult{ExecutionID: "exec-1", Success: true, ExitCode: 0},
	}))

	require.Eventually(t, func() bool {
		return len(coord.results) == 1 && len(coord.statuses) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, "exec-1", coord.results[0].ExecutionID)
	assert.True(t, coord.results[0].Success)
}

func TestServerSendDispatchesOntoWorkerStream(t *testing.T) {
	server, _, conn := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := protocol.OpenSession(ctx, conn)
	require.NoError(t, err)

	require.NoError(t, stream.SendMsg(&protocol.Envelope{
		Kind:    protocol.KindRegistrationRequest,
		Payload: protocol.RegistrationRequest{WorkerName: "worker-3"},
	}))
	var resp protocol.Envelope
	require.NoError(t, stream.RecvMsg(&resp))

	require.Eventually(t, func() bool {
		return server.Send(ctx, "worker-3", protocol.Envelope{Kind: protocol.KindExecutionAssignment}) == nil
	}, time.Second, 5*time.Millisecond)

	var assignment protocol.Envelope
	require.NoError(t, stream.RecvMsg(&assignment))
	assert.Equal(t, protocol.KindExecutionAssignment, assignment.Kind)
}
