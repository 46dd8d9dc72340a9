/*
Package ingress implements the admin HTTP surface: job submission and
inspection, pool listing and execution lookup, over the core's queue,
storage and coordinator ports.

NewRouter builds a chi.Mux; every handler failure is rendered through
writeError as the {code, message, timestamp, traceId} envelope rather than
chi's default plaintext error body. This package carries no authentication
of its own — it is meant to sit behind whatever terminates TLS and
authenticates callers in a real deployment.
*/
package ingress
