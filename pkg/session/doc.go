/*
Package session implements the per-worker connection state machine (C7):
CONNECTING -> REGISTERED -> IDLE <-> BUSY -> (DRAINING) -> DISCONNECTED.
Registry tracks one types.WorkerSession per connected worker and enforces
the transition table via types.ConnectionState.CanTransitionTo.

SweepDisconnects implements the heartbeat discipline: a session that has
not heartbeated in more than 3x the negotiated interval is disconnected
and removed. StateCounts implements metrics.SessionStatsProvider for
periodic Prometheus sampling.
*/
package session
