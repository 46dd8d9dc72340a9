package protocol

import (
	"context"

	"google.golang.org/grpc"
)

// SessionMethod is the full RPC method name the worker and orchestrator
// negotiate the envelope stream over. No .proto/codegen backs this method:
// the hodeiw1 Codec carries gob-encoded Envelopes directly over gRPC's
// framing, so the stream descriptor below is built by hand instead of
// generated from an IDL.
const SessionMethod = "/hodei.WorkerSession/Session"

// sessionStreamDesc describes the single bidirectional-streaming RPC a
// worker's entire session (registration, heartbeats, assignments, results)
// runs over.
var sessionStreamDesc = &grpc.StreamDesc{
	StreamName:    "Session",
	ServerStreams: true,
	ClientStreams: true,
}

// ServiceDesc registers the Session RPC against a handler on a grpc.Server,
// the server-side half of the hand-built stream descriptor above.
func ServiceDesc(handler func(srv interface{}, stream grpc.ServerStream) error) grpc.ServiceDesc {
	return grpc.ServiceDesc{
		ServiceName: "hodei.WorkerSession",
		HandlerType: (*any)(nil),
		Streams: []grpc.StreamDesc{
			{
				StreamName:    "Session",
				Handler:       func(srv interface{}, stream grpc.ServerStream) error { return handler(srv, stream) },
				ServerStreams: true,
				ClientStreams: true,
			},
		},
		Metadata: "protocol/stream.go",
	}
}

// OpenSession opens the worker-lifetime envelope stream against conn,
// selecting the hodeiw1 content subtype negotiated in dial.go.
func OpenSession(ctx context.Context, conn *grpc.ClientConn) (grpc.ClientStream, error) {
	return conn.NewStream(ctx, sessionStreamDesc, SessionMethod, grpc.CallContentSubtype(CodecName))
}
