package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/hodei-pipelines/orchestrator/pkg/types"
)

// MemoryStore is the in-memory Store realization required for tests
// (§4.10). It is safe for concurrent use.
type MemoryStore struct {
	mu sync.RWMutex

	jobs          map[string]types.Job
	queuedJobs    map[string]types.QueuedJob // keyed by Job.ID
	pools         map[string]types.ResourcePool
	poolNameIndex map[string]string // name -> id
	executions    map[string]types.Execution
	auditLogs     map[string]types.AuditLog
	templates     map[string]types.Template
	templateNames map[string]string // name -> id
	ca            []byte
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs:          make(map[string]types.Job),
		queuedJobs:    make(map[string]types.QueuedJob),
		pools:         make(map[string]types.ResourcePool),
		poolNameIndex: make(map[string]string),
		executions:    make(map[string]types.Execution),
		auditLogs:     make(map[string]types.AuditLog),
		templates:     make(map[string]types.Template),
		templateNames: make(map[string]string),
	}
}

func (s *MemoryStore) Jobs() JobRepository                   { return (*memoryJobs)(s) }
func (s *MemoryStore) QueuedJobs() QueuedJobRepository       { return (*memoryQueuedJobs)(s) }
func (s *MemoryStore) ResourcePools() ResourcePoolRepository { return (*memoryPools)(s) }
func (s *MemoryStore) Executions() ExecutionRepository       { return (*memoryExecutions)(s) }
func (s *MemoryStore) AuditLogs() AuditLogRepository         { return (*memoryAuditLogs)(s) }
func (s *MemoryStore) Templates() TemplateRepository         { return (*memoryTemplates)(s) }

func (s *MemoryStore) SaveCA(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ca = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) GetCA(_ context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ca == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), s.ca...), nil
}

func (s *MemoryStore) Close() error { return nil }

type memoryJobs MemoryStore

func (s *memoryJobs) Save(_ context.Context, job types.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

func (s *memoryJobs) FindByID(_ context.Context, id string) (types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return types.Job{}, ErrNotFound
	}
	return job, nil
}

func (s *memoryJobs) List(_ context.Context) ([]types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryJobs) ListByStatus(_ context.Context, status types.JobStatus) ([]types.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Job
	for _, job := range s.jobs {
		if job.Status == status {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memoryJobs) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

type memoryQueuedJobs MemoryStore

func (s *memoryQueuedJobs) Save(_ context.Context, qj types.QueuedJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queuedJobs[qj.Job.ID] = qj
	return nil
}

func (s *memoryQueuedJobs) FindByJobID(_ context.Context, jobID string) (types.QueuedJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	qj, ok := s.queuedJobs[jobID]
	if !ok {
		return types.QueuedJob{}, ErrNotFound
	}
	return qj, nil
}

func (s *memoryQueuedJobs) List(_ context.Context) ([]types.QueuedJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.QueuedJob, 0, len(s.queuedJobs))
	for _, qj := range s.queuedJobs {
		out = append(out, qj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job.ID < out[j].Job.ID })
	return out, nil
}

func (s *memoryQueuedJobs) ListByStatus(_ context.Context, status types.QueuedJobStatus) ([]types.QueuedJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.QueuedJob
	for _, qj := range s.queuedJobs {
		if qj.Status == status {
			out = append(out, qj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job.ID < out[j].Job.ID })
	return out, nil
}

func (s *memoryQueuedJobs) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queuedJobs, jobID)
	return nil
}

type memoryPools MemoryStore

func (s *memoryPools) Save(_ context.Context, pool types.ResourcePool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existingID, ok := s.poolNameIndex[pool.Name]; ok && existingID != pool.ID {
		return ErrConflict
	}
	if prev, ok := s.pools[pool.ID]; ok && prev.Name != pool.Name {
		delete(s.poolNameIndex, prev.Name)
	}
	s.pools[pool.ID] = pool
	s.poolNameIndex[pool.Name] = pool.ID
	return nil
}

func (s *memoryPools) FindByID(_ context.Context, id string) (types.ResourcePool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pool, ok := s.pools[id]
	if !ok {
		return types.ResourcePool{}, ErrNotFound
	}
	return pool, nil
}

func (s *memoryPools) FindByName(_ context.Context, name string) (types.ResourcePool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.poolNameIndex[name]
	if !ok {
		return types.ResourcePool{}, ErrNotFound
	}
	return s.pools[id], nil
}

func (s *memoryPools) FindActive(_ context.Context) ([]types.ResourcePool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.ResourcePool
	for _, pool := range s.pools {
		if pool.Status == types.PoolActive {
			out = append(out, pool)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memoryPools) FindByLabel(_ context.Context, key, value string) ([]types.ResourcePool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.ResourcePool
	for _, pool := range s.pools {
		if pool.Labels[key] == value {
			out = append(out, pool)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memoryPools) List(_ context.Context) ([]types.ResourcePool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.ResourcePool, 0, len(s.pools))
	for _, pool := range s.pools {
		out = append(out, pool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memoryPools) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pool, ok := s.pools[id]; ok {
		if pool.System {
			return ErrConflict
		}
		delete(s.poolNameIndex, pool.Name)
		delete(s.pools, id)
	}
	return nil
}

func (s *memoryPools) Exists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.pools[id]
	return ok, nil
}

type memoryExecutions MemoryStore

func (s *memoryExecutions) Save(_ context.Context, exec types.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[exec.ID] = exec
	return nil
}

func (s *memoryExecutions) FindByID(_ context.Context, id string) (types.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.executions[id]
	if !ok {
		return types.Execution{}, ErrNotFound
	}
	return exec, nil
}

func (s *memoryExecutions) ListByJobID(_ context.Context, jobID string) ([]types.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Execution
	for _, exec := range s.executions {
		if exec.JobID == jobID {
			out = append(out, exec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (s *memoryExecutions) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.executions, id)
	return nil
}

type memoryAuditLogs MemoryStore

func (s *memoryAuditLogs) Save(_ context.Context, entry types.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditLogs[entry.ID] = entry
	return nil
}

func (s *memoryAuditLogs) FindByID(_ context.Context, id string) (types.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.auditLogs[id]
	if !ok {
		return types.AuditLog{}, ErrNotFound
	}
	return entry, nil
}

func (s *memoryAuditLogs) List(_ context.Context) ([]types.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.AuditLog, 0, len(s.auditLogs))
	for _, entry := range s.auditLogs {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *memoryAuditLogs) ListByTarget(_ context.Context, targetID string) ([]types.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.AuditLog
	for _, entry := range s.auditLogs {
		if entry.TargetID == targetID {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (s *memoryAuditLogs) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.auditLogs, id)
	return nil
}

type memoryTemplates MemoryStore

func (s *memoryTemplates) Save(_ context.Context, tmpl types.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existingID, ok := s.templateNames[tmpl.Name]; ok && existingID != tmpl.ID {
		return ErrConflict
	}
	if prev, ok := s.templates[tmpl.ID]; ok && prev.Name != tmpl.Name {
		delete(s.templateNames, prev.Name)
	}
	s.templates[tmpl.ID] = tmpl
	s.templateNames[tmpl.Name] = tmpl.ID
	return nil
}

func (s *memoryTemplates) FindByID(_ context.Context, id string) (types.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tmpl, ok := s.templates[id]
	if !ok {
		return types.Template{}, ErrNotFound
	}
	return tmpl, nil
}

func (s *memoryTemplates) FindByName(_ context.Context, name string) (types.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.templateNames[name]
	if !ok {
		return types.Template{}, ErrNotFound
	}
	return s.templates[id], nil
}

func (s *memoryTemplates) List(_ context.Context) ([]types.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Template, 0, len(s.templates))
	for _, tmpl := range s.templates {
		out = append(out, tmpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memoryTemplates) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tmpl, ok := s.templates[id]; ok {
		delete(s.templateNames, tmpl.Name)
		delete(s.templates, id)
	}
	return nil
}
