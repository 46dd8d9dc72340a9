// Package metrics provides Prometheus instrumentation and health/readiness
// endpoints for the orchestration engine.
//
// Counters and histograms for the queue, scheduler, instance manager,
// worker sessions, artifact cache and execution coordinator are registered
// at init and exposed via Handler(). Collector samples in-memory component
// state (queue depth, pool utilization, session counts) on an interval
// since those packages carry no Prometheus dependency themselves.
//
// HealthHandler, ReadyHandler and LivenessHandler back /health, /ready and
// /livez; readiness reflects the components registered with
// RegisterComponent / UpdateComponent. The orchestrator binary registers
// none of its components.
package metrics
