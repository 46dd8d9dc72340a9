package storage

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/hodei-pipelines/orchestrator/pkg/types"
)

// schema creates the three production-grade tables. Job/Execution/
// ResourcePool are the aggregates worth a real SQL store per §4.10; the
// remaining aggregates (QueuedJob, AuditLog, Template, CA) are served by an
// embedded MemoryStore — see DESIGN.md for why those don't get a table.
const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	document JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS jobs_status_idx ON jobs (status);

CREATE TABLE IF NOT EXISTS executions (
	id TEXT PRIMARY KEY,
	job_id TEXT NOT NULL,
	started_at TIMESTAMPTZ NOT NULL,
	document JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS executions_job_id_idx ON executions (job_id);

CREATE TABLE IF NOT EXISTS resource_pools (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	document JSONB NOT NULL
);
`

// PostgresStore is the production Store realization for Job, Execution and
// ResourcePool, grounded in jordigilh-kubernaut's sqlx-over-pgx stack. The
// remaining aggregates are delegated to an embedded MemoryStore.
type PostgresStore struct {
	db   *sqlx.DB
	rest *MemoryStore
}

// NewPostgresStore opens dsn (a standard postgres:// connection string) via
// pgx's database/sql driver and ensures the schema exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, err
	}
	return &PostgresStore{db: db, rest: NewMemoryStore()}, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }

func (s *PostgresStore) Jobs() JobRepository                   { return &pgJobs{db: s.db} }
func (s *PostgresStore) Executions() ExecutionRepository       { return &pgExecutions{db: s.db} }
func (s *PostgresStore) ResourcePools() ResourcePoolRepository { return &pgPools{db: s.db} }

func (s *PostgresStore) QueuedJobs() QueuedJobRepository { return s.rest.QueuedJobs() }
func (s *PostgresStore) AuditLogs() AuditLogRepository   { return s.rest.AuditLogs() }
func (s *PostgresStore) Templates() TemplateRepository   { return s.rest.Templates() }
func (s *PostgresStore) SaveCA(ctx context.Context, data []byte) error {
	return s.rest.SaveCA(ctx, data)
}
func (s *PostgresStore) GetCA(ctx context.Context) ([]byte, error) {
	return s.rest.GetCA(ctx)
}

type pgJobs struct{ db *sqlx.DB }

func (r *pgJobs) Save(ctx context.Context, job types.Job) error {
	doc, err := json.Marshal(job)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, status, document) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET status = $2, document = $3
	`, job.ID, string(job.Status), doc)
	return err
}

func (r *pgJobs) FindByID(ctx context.Context, id string) (types.Job, error) {
	var doc []byte
	err := r.db.GetContext(ctx, &doc, `SELECT document FROM jobs WHERE id = $1`, id)
	if err != nil {
		return types.Job{}, translateNoRows(err)
	}
	var job types.Job
	if err := json.Unmarshal(doc, &job); err != nil {
		return types.Job{}, err
	}
	return job, nil
}

func (r *pgJobs) List(ctx context.Context) ([]types.Job, error) {
	var docs [][]byte
	if err := r.db.SelectContext(ctx, &docs, `SELECT document FROM jobs ORDER BY id`); err != nil {
		return nil, err
	}
	return unmarshalJobs(docs)
}

func (r *pgJobs) ListByStatus(ctx context.Context, status types.JobStatus) ([]types.Job, error) {
	var docs [][]byte
	err := r.db.SelectContext(ctx, &docs, `SELECT document FROM jobs WHERE status = $1 ORDER BY id`, string(status))
	if err != nil {
		return nil, err
	}
	return unmarshalJobs(docs)
}

func (r *pgJobs) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	return err
}

func unmarshalJobs(docs [][]byte) ([]types.Job, error) {
	out := make([]types.Job, 0, len(docs))
	for _, doc := range docs {
		var job types.Job
		if err := json.Unmarshal(doc, &job); err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, nil
}

type pgExecutions struct{ db *sqlx.DB }

func (r *pgExecutions) Save(ctx context.Context, exec types.Execution) error {
	doc, err := json.Marshal(exec)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO executions (id, job_id, started_at, document) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET document = $4
	`, exec.ID, exec.JobID, exec.StartedAt, doc)
	return err
}

func (r *pgExecutions) FindByID(ctx context.Context, id string) (types.Execution, error) {
	var doc []byte
	err := r.db.GetContext(ctx, &doc, `SELECT document FROM executions WHERE id = $1`, id)
	if err != nil {
		return types.Execution{}, translateNoRows(err)
	}
	var exec types.Execution
	if err := json.Unmarshal(doc, &exec); err != nil {
		return types.Execution{}, err
	}
	return exec, nil
}

func (r *pgExecutions) ListByJobID(ctx context.Context, jobID string) ([]types.Execution, error) {
	var docs [][]byte
	err := r.db.SelectContext(ctx, &docs, `SELECT document FROM executions WHERE job_id = $1 ORDER BY started_at`, jobID)
	if err != nil {
		return nil, err
	}
	out := make([]types.Execution, 0, len(docs))
	for _, doc := range docs {
		var exec types.Execution
		if err := json.Unmarshal(doc, &exec); err != nil {
			return nil, err
		}
		out = append(out, exec)
	}
	return out, nil
}

func (r *pgExecutions) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM executions WHERE id = $1`, id)
	return err
}

type pgPools struct{ db *sqlx.DB }

func (r *pgPools) Save(ctx context.Context, pool types.ResourcePool) error {
	doc, err := json.Marshal(pool)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO resource_pools (id, name, document) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = $2, document = $3
	`, pool.ID, pool.Name, doc)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r *pgPools) FindByID(ctx context.Context, id string) (types.ResourcePool, error) {
	var doc []byte
	err := r.db.GetContext(ctx, &doc, `SELECT document FROM resource_pools WHERE id = $1`, id)
	if err != nil {
		return types.ResourcePool{}, translateNoRows(err)
	}
	return unmarshalPool(doc)
}

func (r *pgPools) FindByName(ctx context.Context, name string) (types.ResourcePool, error) {
	var doc []byte
	err := r.db.GetContext(ctx, &doc, `SELECT document FROM resource_pools WHERE name = $1`, name)
	if err != nil {
		return types.ResourcePool{}, translateNoRows(err)
	}
	return unmarshalPool(doc)
}

func (r *pgPools) FindActive(ctx context.Context) ([]types.ResourcePool, error) {
	all, err := r.List(ctx)
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

func (r *pgPools) FindByLabel(ctx context.Context, key, value string) ([]types.ResourcePool, error) {
	all, err := r.List(ctx)
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

func (r *pgPools) List(ctx context.Context) ([]types.ResourcePool, error) {
	var docs [][]byte
	if err := r.db.SelectContext(ctx, &docs, `SELECT document FROM resource_pools ORDER BY name`); err != nil {
		return nil, err
	}
	out := make([]types.ResourcePool, 0, len(docs))
	for _, doc := range docs {
		pool, err := unmarshalPool(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, pool)
	}
	return out, nil
}

func (r *pgPools) Delete(ctx context.Context, id string) error {
	pool, err := r.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if pool.System {
		return ErrConflict
	}
	_, err = r.db.ExecContext(ctx, `DELETE FROM resource_pools WHERE id = $1`, id)
	return err
}

func (r *pgPools) Exists(ctx context.Context, id string) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT count(*) FROM resource_pools WHERE id = $1`, id)
	return count > 0, err
}

func unmarshalPool(doc []byte) (types.ResourcePool, error) {
	var pool types.ResourcePool
	err := json.Unmarshal(doc, &pool)
	return pool, err
}
