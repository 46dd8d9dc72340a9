/*
Package rpcserver hosts the orchestrator side of the worker session
stream (C7). It has no generated service stubs: protocol.ServiceDesc hand
-builds the single bidirectional-streaming "Session" RPC, and Server reads
envelopes off it directly, driving session.Registry and relaying traffic
into a Coordinator. Server also implements coordinator.Dispatcher,
answering that port by remembering each worker's live stream.
*/
package rpcserver
