package session

import (
	"testing"
	"time"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRegisterIdleBusyLifecycle(t *testing.T) {
	r := New()

	_, err := r.Connect("w1")
	require.NoError(t, err)

	require.NoError(t, r.Register("w1", map[string]string{"gpu": "true"}))
	s, ok := r.Get("w1")
	require.True(t, ok)
	assert.Equal(t, types.StateRegistered, s.State)
	assert.Equal(t, "true", s.Capabilities["gpu"])

	require.NoError(t, r.MarkIdle("w1"))
	s, _ = r.Get("w1")
	assert.Equal(t, types.StateIdle, s.State)

	require.NoError(t, r.AssignExecution("w1", "exec-1"))
	s, _ = r.Get("w1")
	assert.Equal(t, types.StateBusy, s.State)
	assert.Equal(t, "exec-1", s.CurrentExecutionID)

	require.NoError(t, r.MarkIdle("w1"))
	s, _ = r.Get("w1")
	assert.Equal(t, types.StateIdle, s.State)
	assert.Empty(t, s.CurrentExecutionID)
}

func TestConnectDisplacesPriorSession(t *testing.T) {
	r := New()
	first, err := r.Connect("w1")
	require.NoError(t, err)
	require.NoError(t, r.Register("w1", nil))
	require.NoError(t, r.MarkIdle("w1"))

	second, err := r.Connect("w1")
	require.NoError(t, err)

	// The new session replaces the old one under the same worker id; the
	// prior *WorkerSession value is transitioned to DISCONNECTED and is no
	// longer registry-tracked.
	assert.NotSame(t, first, second)
	assert.Equal(t, types.StateDisconnected, first.State)
	assert.Equal(t, types.StateConnecting, second.State)

	s, ok := r.Get("w1")
	require.True(t, ok)
	assert.Equal(t, *second, s)
	assert.Equal(t, types.StateConnecting, s.State)
}

func TestInvalidTransitionRejected(t *testing.T) {
	r := New()
	_, err := r.Connect("w1")
	require.NoError(t, err)

	// CONNECTING cannot go straight to BUSY.
	err = r.AssignExecution("w1", "exec-1")
	require.Error(t, err)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindBusinessRule, kind)
}

func TestDrainFromBusyThenDisconnect(t *testing.T) {
	r := New()
	_, _ = r.Connect("w1")
	require.NoError(t, r.Register("w1", nil))
	require.NoError(t, r.MarkIdle("w1"))
	require.NoError(t, r.AssignExecution("w1", "exec-1"))

	require.NoError(t, r.Drain("w1"))
	s, _ := r.Get("w1")
	assert.Equal(t, types.StateDraining, s.State)

	require.NoError(t, r.Disconnect("w1"))
	_, ok := r.Get("w1")
	assert.False(t, ok)
}

func TestSweepDisconnectsMissedHeartbeats(t *testing.T) {
	r := New()
	fixed := time.Now()
	r.now = func() time.Time { return fixed }

	_, _ = r.Connect("w1")
	require.NoError(t, r.Register("w1", nil))

	// Advance time past 3x the heartbeat interval without a heartbeat.
	r.now = func() time.Time { return fixed.Add(100 * time.Second) }
	disconnected := r.SweepDisconnects(30 * time.Second)

	assert.Equal(t, []string{"w1"}, disconnected)
	_, ok := r.Get("w1")
	assert.False(t, ok)
}

func TestSweepDisconnectsIgnoresConnectingWorkers(t *testing.T) {
	r := New()
	fixed := time.Now()
	r.now = func() time.Time { return fixed }
	_, _ = r.Connect("w1")

	r.now = func() time.Time { return fixed.Add(time.Hour) }
	disconnected := r.SweepDisconnects(30 * time.Second)
	assert.Empty(t, disconnected)
}

func TestRecordHeartbeatKeepsSessionAlive(t *testing.T) {
	r := New()
	fixed := time.Now()
	r.now = func() time.Time { return fixed }
	_, _ = r.Connect("w1")
	require.NoError(t, r.Register("w1", nil))

	r.now = func() time.Time { return fixed.Add(80 * time.Second) }
	require.NoError(t, r.RecordHeartbeat("w1"))

	r.now = func() time.Time { return fixed.Add(100 * time.Second) }
	disconnected := r.SweepDisconnects(30 * time.Second)
	assert.Empty(t, disconnected)
}

func TestIdleWorkersFiltersByState(t *testing.T) {
	r := New()
	_, _ = r.Connect("w1")
	require.NoError(t, r.Register("w1", nil))
	require.NoError(t, r.MarkIdle("w1"))

	_, _ = r.Connect("w2")

	idle := r.IdleWorkers()
	require.Len(t, idle, 1)
	assert.Equal(t, "w1", idle[0].WorkerID)
}

func TestStateCountsForMetrics(t *testing.T) {
	r := New()
	_, _ = r.Connect("w1")
	require.NoError(t, r.Register("w1", nil))
	_, _ = r.Connect("w2")

	counts := r.StateCounts()
	assert.Equal(t, 1, counts[string(types.StateRegistered)])
	assert.Equal(t, 1, counts[string(types.StateConnecting)])
}

func TestNewSessionTokenIsNonEmpty(t *testing.T) {
	assert.NotEmpty(t, NewSessionToken())
}
