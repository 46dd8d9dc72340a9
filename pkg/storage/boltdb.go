package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/hodei-pipelines/orchestrator/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketJobs       = []byte("jobs")
	bucketQueuedJobs = []byte("queued_jobs")
	bucketPools      = []byte("resource_pools")
	bucketExecutions = []byte("executions")
	bucketAuditLogs  = []byte("audit_logs")
	bucketTemplates  = []byte("templates")
	bucketCA         = []byte("ca")
)

// BoltStore is the embedded-database Store realization, adapted from the
// teacher's BoltStore: one bucket per aggregate, JSON-encoded values.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if necessary) a BoltDB file under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "orchestrator.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketJobs, bucketQueuedJobs, bucketPools,
			bucketExecutions, bucketAuditLogs, bucketTemplates, bucketCA,
		}
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

func (s *BoltStore) Jobs() JobRepository                   { return &boltJobs{db: s.db} }
func (s *BoltStore) QueuedJobs() QueuedJobRepository       { return &boltQueuedJobs{db: s.db} }
func (s *BoltStore) ResourcePools() ResourcePoolRepository { return &boltPools{db: s.db} }
func (s *BoltStore) Executions() ExecutionRepository       { return &boltExecutions{db: s.db} }
func (s *BoltStore) AuditLogs() AuditLogRepository         { return &boltAuditLogs{db: s.db} }
func (s *BoltStore) Templates() TemplateRepository         { return &boltTemplates{db: s.db} }

func (s *BoltStore) SaveCA(_ context.Context, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCA).Put([]byte("ca"), data)
	})
}

func (s *BoltStore) GetCA(_ context.Context) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCA).Get([]byte("ca"))
		if v == nil {
			return ErrNotFound
		}
		data = append([]byte(nil), v...)
		return nil
	})
	return data, err
}

type boltJobs struct{ db *bolt.DB }

func (b *boltJobs) Save(_ context.Context, job types.Job) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(job)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketJobs).Put([]byte(job.ID), data)
	})
}

func (b *boltJobs) FindByID(_ context.Context, id string) (types.Job, error) {
	var job types.Job
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketJobs).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &job)
	})
	return job, err
}

func (b *boltJobs) List(_ context.Context) ([]types.Job, error) {
	var jobs []types.Job
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(_, v []byte) error {
			var job types.Job
			if err := json.Unmarshal(v, &job); err != nil {
				return err
			}
			jobs = append(jobs, job)
			return nil
		})
	})
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].ID < jobs[j].ID })
	return jobs, err
}

func (b *boltJobs) ListByStatus(ctx context.Context, status types.JobStatus) ([]types.Job, error) {
	all, err := b.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.Job
	for _, job := range all {
		if job.Status == status {
			out = append(out, job)
		}
	}
	return out, nil
}

func (b *boltJobs) Delete(_ context.Context, id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).Delete([]byte(id))
	})
}

type boltQueuedJobs struct{ db *bolt.DB }

func (b *boltQueuedJobs) Save(_ context.Context, qj types.QueuedJob) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(qj)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketQueuedJobs).Put([]byte(qj.Job.ID), data)
	})
}

func (b *boltQueuedJobs) FindByJobID(_ context.Context, jobID string) (types.QueuedJob, error) {
	var qj types.QueuedJob
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketQueuedJobs).Get([]byte(jobID))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &qj)
	})
	return qj, err
}

func (b *boltQueuedJobs) List(_ context.Context) ([]types.QueuedJob, error) {
	var out []types.QueuedJob
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQueuedJobs).ForEach(func(_, v []byte) error {
			var qj types.QueuedJob
			if err := json.Unmarshal(v, &qj); err != nil {
				return err
			}
			out = append(out, qj)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Job.ID < out[j].Job.ID })
	return out, err
}

func (b *boltQueuedJobs) ListByStatus(ctx context.Context, status types.QueuedJobStatus) ([]types.QueuedJob, error) {
	all, err := b.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.QueuedJob
	for _, qj := range all {
		if qj.Status == status {
			out = append(out, qj)
		}
	}
	return out, nil
}

func (b *boltQueuedJobs) Delete(_ context.Context, jobID string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQueuedJobs).Delete([]byte(jobID))
	})
}

type boltPools struct{ db *bolt.DB }

func (b *boltPools) Save(_ context.Context, pool types.ResourcePool) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketPools)
		if err := bucket.ForEach(func(k, v []byte) error {
			if string(k) == pool.ID {
				return nil
			}
			var existing types.ResourcePool
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			if existing.Name == pool.Name {
				return ErrConflict
			}
			return nil
		}); err != nil {
			return err
		}
		data, err := json.Marshal(pool)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(pool.ID), data)
	})
}

func (b *boltPools) FindByID(_ context.Context, id string) (types.ResourcePool, error) {
	var pool types.ResourcePool
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPools).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &pool)
	})
	return pool, err
}

func (b *boltPools) FindByName(ctx context.Context, name string) (types.ResourcePool, error) {
	all, err := b.List(ctx)
	if err != nil {
		return types.ResourcePool{}, err
	}
	for _, pool := range all {
		if pool.Name == name {
			return pool, nil
		}
	}
	return types.ResourcePool{}, ErrNotFound
}

func (b *boltPools) FindActive(ctx context.Context) ([]types.ResourcePool, error) {
	all, err := b.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.ResourcePool
	for _, pool := range all {
		if pool.Status == types.PoolActive {
			out = append(out, pool)
		}
	}
	return out, nil
}

func (b *boltPools) FindByLabel(ctx context.Context, key, value string) ([]types.ResourcePool, error) {
	all, err := b.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.ResourcePool
	for _, pool := range all {
		if pool.Labels[key] == value {
			out = append(out, pool)
		}
	}
	return out, nil
}

func (b *boltPools) List(_ context.Context) ([]types.ResourcePool, error) {
	var out []types.ResourcePool
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPools).ForEach(func(_, v []byte) error {
			var pool types.ResourcePool
			if err := json.Unmarshal(v, &pool); err != nil {
				return err
			}
			out = append(out, pool)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func (b *boltPools) Delete(ctx context.Context, id string) error {
	pool, err := b.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if pool.System {
		return ErrConflict
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPools).Delete([]byte(id))
	})
}

func (b *boltPools) Exists(_ context.Context, id string) (bool, error) {
	exists := false
	err := b.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(bucketPools).Get([]byte(id)) != nil
		return nil
	})
	return exists, err
}

type boltExecutions struct{ db *bolt.DB }

func (b *boltExecutions) Save(_ context.Context, exec types.Execution) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(exec)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketExecutions).Put([]byte(exec.ID), data)
	})
}

func (b *boltExecutions) FindByID(_ context.Context, id string) (types.Execution, error) {
	var exec types.Execution
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketExecutions).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &exec)
	})
	return exec, err
}

func (b *boltExecutions) ListByJobID(_ context.Context, jobID string) ([]types.Execution, error) {
	var out []types.Execution
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketExecutions).ForEach(func(_, v []byte) error {
			var exec types.Execution
			if err := json.Unmarshal(v, &exec); err != nil {
				return err
			}
			if exec.JobID == jobID {
				out = append(out, exec)
			}
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, err
}

func (b *boltExecutions) Delete(_ context.Context, id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketExecutions).Delete([]byte(id))
	})
}

type boltAuditLogs struct{ db *bolt.DB }

func (b *boltAuditLogs) Save(_ context.Context, entry types.AuditLog) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketAuditLogs).Put([]byte(entry.ID), data)
	})
}

func (b *boltAuditLogs) FindByID(_ context.Context, id string) (types.AuditLog, error) {
	var entry types.AuditLog
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketAuditLogs).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &entry)
	})
	return entry, err
}

func (b *boltAuditLogs) List(_ context.Context) ([]types.AuditLog, error) {
	var out []types.AuditLog
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAuditLogs).ForEach(func(_, v []byte) error {
			var entry types.AuditLog
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			out = append(out, entry)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, err
}

func (b *boltAuditLogs) ListByTarget(ctx context.Context, targetID string) ([]types.AuditLog, error) {
	all, err := b.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []types.AuditLog
	for _, entry := range all {
		if entry.TargetID == targetID {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (b *boltAuditLogs) Delete(_ context.Context, id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAuditLogs).Delete([]byte(id))
	})
}

type boltTemplates struct{ db *bolt.DB }

func (b *boltTemplates) Save(_ context.Context, tmpl types.Template) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketTemplates)
		if err := bucket.ForEach(func(k, v []byte) error {
			if string(k) == tmpl.ID {
				return nil
			}
			var existing types.Template
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			if existing.Name == tmpl.Name {
				return ErrConflict
			}
			return nil
		}); err != nil {
			return err
		}
		data, err := json.Marshal(tmpl)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(tmpl.ID), data)
	})
}

func (b *boltTemplates) FindByID(_ context.Context, id string) (types.Template, error) {
	var tmpl types.Template
	err := b.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketTemplates).Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		return json.Unmarshal(data, &tmpl)
	})
	return tmpl, err
}

func (b *boltTemplates) FindByName(ctx context.Context, name string) (types.Template, error) {
	all, err := b.List(ctx)
	if err != nil {
		return types.Template{}, err
	}
	for _, tmpl := range all {
		if tmpl.Name == name {
			return tmpl, nil
		}
	}
	return types.Template{}, ErrNotFound
}

func (b *boltTemplates) List(_ context.Context) ([]types.Template, error) {
	var out []types.Template
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTemplates).ForEach(func(_, v []byte) error {
			var tmpl types.Template
			if err := json.Unmarshal(v, &tmpl); err != nil {
				return err
			}
			out = append(out, tmpl)
			return nil
		})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

func (b *boltTemplates) Delete(_ context.Context, id string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketTemplates).Delete([]byte(id))
	})
}
