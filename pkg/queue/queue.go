// Package queue implements the job queue (C2): admission, effective-priority
// ranking and retry re-admission over the set of QueuedJob entries, with at
// most one entry per job-id.
package queue

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/types"
)

// Strategy selects the ranking order nextJob uses among candidate entries
// (§4.1).
type Strategy string

const (
	PriorityBased Strategy = "PRIORITY_BASED"
	FIFO          Strategy = "FIFO"
	Deadline      Strategy = "DEADLINE"
)

// Outcome tags the result of an Enqueue call.
type Outcome string

const (
	OutcomeSuccess      Outcome = "success"
	OutcomeAlreadyQueued Outcome = "already_queued"
	OutcomeQueueFull    Outcome = "queue_full"
)

// EnqueueResult is the §4.1 enqueue return: Success(size) | AlreadyQueued(id) | QueueFull(max).
type EnqueueResult struct {
	Outcome Outcome
	Size    int
	JobID   string
	Max     int
}

// Stats is the §4.1 stats() return, computed live against current contents.
type Stats struct {
	TotalJobs         int
	PriorityBreakdown map[string]int
	OldestJob         *types.QueuedJob
	AverageWaitTime   time.Duration
}

// Queue is a mutex-guarded map of QueuedJob keyed by job-id; ordering is
// derived on read rather than cached, per §4.1/§5.
type Queue struct {
	mu       sync.Mutex
	entries  map[string]*types.QueuedJob
	maxSize  int
	strategy Strategy
	now      func() time.Time
}

// New constructs an empty Queue bounded by maxSize and ranked by strategy.
func New(maxSize int, strategy Strategy) *Queue {
	if strategy == "" {
		strategy = PriorityBased
	}
	return &Queue{
		entries:  make(map[string]*types.QueuedJob),
		maxSize:  maxSize,
		strategy: strategy,
		now:      time.Now,
	}
}

// Enqueue admits job into the queue at the job's own Priority with the
// given resource requirements. Duplicates by job-id are rejected; the queue is
// bounded by maxSize (§4.1).
func (q *Queue) Enqueue(job types.Job, requirements types.ResourceRequirements) EnqueueResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.entries[job.ID]; exists {
		return EnqueueResult{Outcome: OutcomeAlreadyQueued, JobID: job.ID}
	}
	if q.maxSize > 0 && len(q.entries) >= q.maxSize {
		return EnqueueResult{Outcome: OutcomeQueueFull, Max: q.maxSize}
	}

	qj := &types.QueuedJob{
		Job:               job,
		QueuedAt:          q.now(),
		RetryCount:        0,
		MaxRetries:        job.Retry.MaxRetries,
		Deadline:          job.Deadline,
		EstimatedDuration: job.EstimatedDuration,
		Requirements:      requirements,
		WorkerAffinity:    job.Labels,
		Status:            types.QueuedWaiting,
	}
	q.entries[job.ID] = qj

	return EnqueueResult{Outcome: OutcomeSuccess, Size: len(q.entries), JobID: job.ID}
}

// Dequeue removes and returns the entry for jobId, or nil if absent (§4.1).
func (q *Queue) Dequeue(jobID string) *types.QueuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	qj, ok := q.entries[jobID]
	if !ok {
		return nil
	}
	delete(q.entries, jobID)
	return qj
}

// EffectivePriority computes the §4.1 formula exactly:
//
//	basePriority + ageBoost + deadlineBoost + expiredBoost
//
// clamped to [1, 10000].
func EffectivePriority(qj types.QueuedJob, now time.Time) int {
	minutesWaiting := now.Sub(qj.QueuedAt).Minutes()
	ageBoost := int(math.Min(300, math.Floor(minutesWaiting/10)*50))

	deadlineBoost := 0
	if qj.Deadline != nil {
		estimated := time.Duration(0)
		if qj.EstimatedDuration != nil {
			estimated = *qj.EstimatedDuration
		}
		if now.Add(estimated).After(qj.Deadline.Add(-10 * time.Minute)) {
			deadlineBoost = 200
		}
	}

	expiredBoost := 0
	if qj.Expired(now) {
		expiredBoost = 500
	}

	return clampPriority(qj.Job.Priority + ageBoost + deadlineBoost + expiredBoost)
}

func clampPriority(p int) int {
	if p < 1 {
		return 1
	}
	if p > 10000 {
		return 10000
	}
	return p
}

// NextJob returns the highest-ranked entry for which at least one of
// candidateWorkers matches the job's affinity labels and has free capacity,
// per the queue's configured strategy (§4.1). Returns nil if none match.
func (q *Queue) NextJob(candidateWorkers []types.CandidateWorker) *types.QueuedJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var candidates []*types.QueuedJob
	for _, qj := range q.entries {
		if hasEligibleWorker(*qj, candidateWorkers) {
			candidates = append(candidates, qj)
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return q.less(*candidates[i], *candidates[j], now)
	})
	return candidates[0]
}

func hasEligibleWorker(qj types.QueuedJob, workers []types.CandidateWorker) bool {
	for _, w := range workers {
		if w.HasCapacity() && w.MatchesAffinity(qj.WorkerAffinity) {
			return true
		}
	}
	return false
}

func (q *Queue) less(a, b types.QueuedJob, now time.Time) bool {
	switch q.strategy {
	case FIFO:
		return a.QueuedAt.Before(b.QueuedAt)
	case Deadline:
		aDeadline, aHas := a.Deadline, a.Deadline != nil
		bDeadline, bHas := b.Deadline, b.Deadline != nil
		if aHas != bHas {
			return aHas
		}
		if aHas && bHas && !aDeadline.Equal(*bDeadline) {
			return aDeadline.Before(*bDeadline)
		}
		return EffectivePriority(a, now) > EffectivePriority(b, now)
	default: // PriorityBased
		pa, pb := EffectivePriority(a, now), EffectivePriority(b, now)
		if pa != pb {
			return pa > pb
		}
		return a.QueuedAt.Before(b.QueuedAt)
	}
}

// Retry returns a fresh QueuedJob with RetryCount+1 and a re-stamped
// QueuedAt, preserving all other fields (§4.1). Fails with BusinessRule if
// retryCount >= maxRetries.
func Retry(qj types.QueuedJob, now time.Time) (types.QueuedJob, error) {
	if qj.RetryCount >= qj.MaxRetries {
		return types.QueuedJob{}, apperr.BusinessRule("queue.retry", "retry count exhausted")
	}
	next := qj
	next.RetryCount = qj.RetryCount + 1
	next.QueuedAt = now
	next.Status = types.QueuedRetrying
	return next, nil
}

// Stats computes the §4.1 live stats snapshot.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := Stats{
		TotalJobs:         len(q.entries),
		PriorityBreakdown: make(map[string]int),
	}
	if len(q.entries) == 0 {
		return stats
	}

	now := q.now()
	var totalWait time.Duration
	for _, qj := range q.entries {
		bucket := priorityBucket(qj.Job.Priority)
		stats.PriorityBreakdown[bucket]++
		totalWait += now.Sub(qj.QueuedAt)
		if stats.OldestJob == nil || qj.QueuedAt.Before(stats.OldestJob.QueuedAt) {
			cp := *qj
			stats.OldestJob = &cp
		}
	}
	stats.AverageWaitTime = totalWait / time.Duration(len(q.entries))
	return stats
}

func priorityBucket(priority int) string {
	switch {
	case priority >= 750:
		return "HIGH"
	case priority >= 500:
		return "NORMAL"
	default:
		return "LOW"
	}
}

// StatusCounts implements metrics.QueueStatsProvider, reporting the current
// count of queued entries grouped by QueuedJobStatus.
func (q *Queue) StatusCounts() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	counts := make(map[string]int)
	now := q.now()
	for _, qj := range q.entries {
		status := qj.Status
		if qj.Expired(now) {
			status = types.QueuedExpired
		}
		counts[string(status)]++
	}
	return counts
}

// Size returns the current number of queued entries.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
