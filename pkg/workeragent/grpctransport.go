package workeragent

import (
	"context"

	"google.golang.org/grpc"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/protocol"
)

// GRPCTransport adapts a live grpc.ClientStream opened over
// protocol.OpenSession into the Agent's Transport port.
type GRPCTransport struct {
	stream grpc.ClientStream
}

// NewGRPCTransport wraps an already-open session stream.
func NewGRPCTransport(stream grpc.ClientStream) *GRPCTransport {
	return &GRPCTransport{stream: stream}
}

// Send implements Transport.
func (t *GRPCTransport) Send(ctx context.Context, env protocol.Envelope) error {
	if err := t.stream.SendMsg(&env); err != nil {
		return apperr.Wrap(apperr.KindTransport, "workeragent.GRPCTransport.Send", err)
	}
	return nil
}

// Recv implements Transport.
func (t *GRPCTransport) Recv(ctx context.Context) (protocol.Envelope, error) {
	var env protocol.Envelope
	if err := t.stream.RecvMsg(&env); err != nil {
		return protocol.Envelope{}, apperr.Wrap(apperr.KindTransport, "workeragent.GRPCTransport.Recv", err)
	}
	return env, nil
}
