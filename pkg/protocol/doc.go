/*
Package protocol defines the worker session wire protocol (C7): the
eleven message kinds exchanged over the bidirectional control stream
(six worker-to-orchestrator, five orchestrator-to-worker, carried as
Go structs inside an Envelope{Kind, Payload}), plus the custom grpc codec
that frames them.

The control channel is a google.golang.org/grpc bidirectional stream
secured with mutual TLS — DialWithMTLS mirrors the teacher's
connectWithMTLS pattern. Because no .proto IDL or generated bindings are
available to this build, Envelope values are framed with Codec, a
grpc/encoding.Codec registered under the name "hodeiw1" instead of
protobuf's default. gRPC's stream multiplexing, flow control and mTLS
handshake are exercised exactly as they would be with generated bindings;
only the payload codec differs.
*/
package protocol
