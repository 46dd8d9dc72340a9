// Package ids provides the opaque identifier and timestamp primitives (C1)
// shared by every other package: jobs, pools, workers and executions are
// all identified by an opaque string, never interpreted by the core.
package ids

import (
	"time"

	"github.com/google/uuid"
)

// New returns a new random identifier with the given prefix, e.g. "job-<uuid>".
// Prefixes make log lines and traces self-describing without a lookup.
func New(prefix string) string {
	return prefix + "-" + uuid.New().String()
}

// Job, Pool, Worker, Execution and Session mint identifiers for their
// respective aggregates. Callers should prefer these over New() directly so
// the prefix convention stays centralized.
func Job() string       { return New("job") }
func Pool() string      { return New("pool") }
func Worker() string    { return New("worker") }
func Execution() string { return New("exec") }
func Session() string   { return New("sess") }
func Artifact() string  { return New("artifact") }
func Token() string     { return New("tok") }

// Now returns the current instant truncated to millisecond resolution, the
// minimum precision the spec requires of timestamps. Truncating here keeps
// round-tripped timestamps (e.g. through JSON or a SQL column) comparable
// for equality in tests.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
