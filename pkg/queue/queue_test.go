package queue

import (
	"testing"
	"time"

	"github.com/hodei-pipelines/orchestrator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJob(id string, priority int) types.Job {
	return types.Job{
		ID:       id,
		Name:     id,
		Content:  types.JobContent{Kind: types.ContentShellCommands, Commands: []string{"echo hi"}},
		Priority: priority,
		Status:   types.JobPending,
	}
}

func idleWorker(labels map[string]string) types.CandidateWorker {
	return types.CandidateWorker{WorkerID: "w1", Labels: labels, ActiveJobs: 0, MaxConcurrentJobs: 1}
}

func TestEnqueueDequeueRoundtrip(t *testing.T) {
	q := New(0, PriorityBased)
	job := testJob("job-1", 500)

	result := q.Enqueue(job, types.ResourceRequirements{})
	require.Equal(t, OutcomeSuccess, result.Outcome)
	require.Equal(t, 1, result.Size)

	qj := q.Dequeue("job-1")
	require.NotNil(t, qj)
	assert.Equal(t, "job-1", qj.Job.ID)
	assert.Equal(t, 0, qj.RetryCount)

	assert.Nil(t, q.Dequeue("job-1"))
}

func TestEnqueueRejectsDuplicateJobID(t *testing.T) {
	q := New(0, PriorityBased)
	job := testJob("job-1", 500)

	q.Enqueue(job, types.ResourceRequirements{})
	result := q.Enqueue(job, types.ResourceRequirements{})

	assert.Equal(t, OutcomeAlreadyQueued, result.Outcome)
	assert.Equal(t, 1, q.Size())
}

func TestEnqueueQueueFull(t *testing.T) {
	q := New(1, PriorityBased)
	q.Enqueue(testJob("job-1", 500), types.ResourceRequirements{})

	result := q.Enqueue(testJob("job-2", 500), types.ResourceRequirements{})
	assert.Equal(t, OutcomeQueueFull, result.Outcome)
	assert.Equal(t, 1, result.Max)
}

func TestNextJobPriorityOrdering(t *testing.T) {
	// Scenario 1 (§8): enqueue A(LOW 250), B(HIGH 750), C(NORMAL 500) in
	// that order; PRIORITY_BASED returns B, then C, then A.
	q := New(0, PriorityBased)
	q.Enqueue(testJob("A", 250), types.ResourceRequirements{})
	q.Enqueue(testJob("B", 750), types.ResourceRequirements{})
	q.Enqueue(testJob("C", 500), types.ResourceRequirements{})

	workers := []types.CandidateWorker{idleWorker(nil)}

	first := q.NextJob(workers)
	require.NotNil(t, first)
	assert.Equal(t, "B", first.Job.ID)
	q.Dequeue(first.Job.ID)

	second := q.NextJob(workers)
	require.NotNil(t, second)
	assert.Equal(t, "C", second.Job.ID)
	q.Dequeue(second.Job.ID)

	third := q.NextJob(workers)
	require.NotNil(t, third)
	assert.Equal(t, "A", third.Job.ID)
}

func TestNextJobFIFOOverride(t *testing.T) {
	// Scenario 2 (§8): same three jobs under FIFO return A, C, B.
	q := New(0, FIFO)
	q.Enqueue(testJob("A", 250), types.ResourceRequirements{})
	q.Enqueue(testJob("B", 750), types.ResourceRequirements{})
	q.Enqueue(testJob("C", 500), types.ResourceRequirements{})

	workers := []types.CandidateWorker{idleWorker(nil)}

	order := []string{}
	for i := 0; i < 3; i++ {
		next := q.NextJob(workers)
		require.NotNil(t, next)
		order = append(order, next.Job.ID)
		q.Dequeue(next.Job.ID)
	}
	assert.Equal(t, []string{"A", "C", "B"}, order)
}

func TestNextJobRequiresAffinityAndCapacity(t *testing.T) {
	q := New(0, PriorityBased)
	job := testJob("A", 500)
	job.Labels = map[string]string{"gpu": "true"}
	q.Enqueue(job, types.ResourceRequirements{})

	noMatch := []types.CandidateWorker{idleWorker(map[string]string{"gpu": "false"})}
	assert.Nil(t, q.NextJob(noMatch))

	match := []types.CandidateWorker{idleWorker(map[string]string{"gpu": "true"})}
	assert.NotNil(t, q.NextJob(match))

	full := []types.CandidateWorker{{WorkerID: "w1", Labels: map[string]string{"gpu": "true"}, ActiveJobs: 1, MaxConcurrentJobs: 1}}
	assert.Nil(t, q.NextJob(full))
}

func TestEffectivePriorityBaseline(t *testing.T) {
	// Invariant 6 (§8): an unexpired, freshly queued, NORMAL job with no
	// deadline has effective priority equal to its base priority.
	now := time.Now()
	qj := types.QueuedJob{
		Job:      testJob("A", types.DefaultPriority),
		QueuedAt: now,
	}
	assert.Equal(t, types.DefaultPriority, EffectivePriority(qj, now))
}

func TestEffectivePriorityAging(t *testing.T) {
	// Scenario 3 (§8): NORMAL(500) job aged 22 minutes has effective
	// priority 500 + 100 (two 10-minute buckets x 50).
	t0 := time.Now()
	qj := types.QueuedJob{
		Job:      testJob("A", 500),
		QueuedAt: t0,
	}
	got := EffectivePriority(qj, t0.Add(22*time.Minute))
	assert.Equal(t, 600, got)
}

func TestEffectivePriorityExpiredWins(t *testing.T) {
	// Scenario 4 (§8): A(LOW 250, deadline in the past) gets expiredBoost
	// 500 plus deadlineBoost 200 (now is already past deadline-10m), for
	// an effective 950 — ahead of HIGH(750) outright.
	now := time.Now()
	past := now.Add(-1 * time.Second)

	a := types.QueuedJob{Job: testJob("A", 250), QueuedAt: now.Add(-time.Minute), Deadline: &past}
	b := types.QueuedJob{Job: testJob("B", 750), QueuedAt: now}

	assert.Equal(t, 950, EffectivePriority(a, now))
	assert.Equal(t, 750, EffectivePriority(b, now))

	q := New(0, PriorityBased)
	q.Enqueue(a.Job, types.ResourceRequirements{})
	q.Dequeue(a.Job.ID)
	q.entries[a.Job.ID] = &a
	q.entries[b.Job.ID] = &b

	next := q.NextJob([]types.CandidateWorker{idleWorker(nil)})
	require.NotNil(t, next)
	assert.Equal(t, "A", next.Job.ID)
}

func TestEffectivePriorityExpiredAndAged(t *testing.T) {
	// basePriority + ageBoost + deadlineBoost + expiredBoost must all sum
	// unconditionally (§4.1): a job that is both expired and has aged past
	// a 10-minute bucket gets every boost, not just expiredBoost.
	now := time.Now()
	past := now.Add(-1 * time.Second)

	qj := types.QueuedJob{
		Job:      testJob("A", 250),
		QueuedAt: now.Add(-22 * time.Minute),
		Deadline: &past,
	}

	// ageBoost: floor(22/10)*50 = 100
	// deadlineBoost: now is already past deadline-10m = 200
	// expiredBoost: deadline has passed = 500
	assert.Equal(t, 1050, EffectivePriority(qj, now))
}

func TestEffectivePriorityClamped(t *testing.T) {
	now := time.Now()
	qj := types.QueuedJob{Job: testJob("A", 1000), QueuedAt: now.Add(-10 * time.Hour)}
	assert.LessOrEqual(t, EffectivePriority(qj, now), 10000)
}

func TestRetryExhaustion(t *testing.T) {
	qj := types.QueuedJob{RetryCount: 2, MaxRetries: 2}
	_, err := Retry(qj, time.Now())
	require.Error(t, err)
}

func TestRetryIncrementsAndRestampsQueuedAt(t *testing.T) {
	now := time.Now()
	qj := types.QueuedJob{RetryCount: 0, MaxRetries: 2, QueuedAt: now.Add(-time.Hour)}

	next, err := Retry(qj, now)
	require.NoError(t, err)
	assert.Equal(t, 1, next.RetryCount)
	assert.WithinDuration(t, now, next.QueuedAt, time.Millisecond)
	assert.Equal(t, types.QueuedRetrying, next.Status)
}

func TestStatsComputedLive(t *testing.T) {
	q := New(0, PriorityBased)
	q.Enqueue(testJob("A", 250), types.ResourceRequirements{})
	q.Enqueue(testJob("B", 750), types.ResourceRequirements{})

	stats := q.Stats()
	assert.Equal(t, 2, stats.TotalJobs)
	assert.Equal(t, 1, stats.PriorityBreakdown["LOW"])
	assert.Equal(t, 1, stats.PriorityBreakdown["HIGH"])
	require.NotNil(t, stats.OldestJob)
}

func TestStatusCountsForMetrics(t *testing.T) {
	q := New(0, PriorityBased)
	q.Enqueue(testJob("A", 250), types.ResourceRequirements{})

	counts := q.StatusCounts()
	assert.Equal(t, 1, counts[string(types.QueuedWaiting)])
}

func TestStatusCountsReportsExpiredJob(t *testing.T) {
	now := time.Now()
	past := now.Add(-1 * time.Second)

	q := New(0, PriorityBased)
	q.Enqueue(testJob("A", 500), types.ResourceRequirements{})
	q.entries["A"].Deadline = &past

	counts := q.StatusCounts()
	assert.Equal(t, 1, counts[string(types.QueuedExpired)])
}
