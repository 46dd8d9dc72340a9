/*
Package events implements the domain event bus (C10): an in-process,
best-effort publish/subscribe fan-out over job, worker and pool lifecycle
Events, adapted from the teacher's Broker and generalized to typed,
per-kind subscriptions.

Subscribe registers for one Kind; SubscribeToAll registers for every kind
published. Each subscriber gets its own bounded channel (DefaultBufferSize
unless New is given a different size); a slow subscriber drops events
rather than blocking Publish, and Bus counts the drops per subscriber for
metrics reporting.

Typical consumers are the audit log (pkg/storage) and metrics collection
(pkg/metrics), both subscribing to every kind and filtering as needed.
*/
package events
