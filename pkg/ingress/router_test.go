package ingress

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hodei-pipelines/orchestrator/pkg/queue"
	"github.com/hodei-pipelines/orchestrator/pkg/storage"
	"github.com/hodei-pipelines/orchestrator/pkg/types"
)

func newTestRouter(t *testing.T, cancel func(ctx context.Context, jobID string) error) (http.Handler, storage.Store, *queue.Queue) {
	t.Helper()
	store := storage.NewMemoryStore()
	q := queue.New(0, queue.PriorityBased)
	return NewRouter(Deps{Queue: q, Store: store, Cancel: cancel}), store, q
}

func TestHealthzReturnsOK(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubmitJobThenGetJob(t *testing.T) {
	router, _, q := newTestRouter(t, nil)

	body, err := json.Marshal(submitJobRequest{
		Name:         "build",
		Content:      types.JobContent{Kind: types.ContentShellCommands, Commands: []string{"echo hi"}},
		Requirements: types.ResourceRequirements{CPU: 1, MemoryMi: "256Mi"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)

	var created types.Job
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, types.JobQueued, created.Status)
	assert.Equal(t, 1, q.Size())

	getReq := httptest.NewRequest(http.MethodGet, "/v1/jobs/"+created.ID, nil)
	getW := httptest.NewRecorder()
	router.ServeHTTP(getW, getReq)

	require.Equal(t, http.StatusOK, getW.Code)
	var fetched types.Job
	require.NoError(t, json.NewDecoder(getW.Body).Decode(&fetched))
	assert.Equal(t, created.ID, fetched.ID)
}

func TestSubmitJobRejectsMissingName(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	body, err := json.Marshal(submitJobRequest{
		Content:      types.JobContent{Kind: types.ContentShellCommands, Commands: []string{"echo hi"}},
		Requirements: types.ResourceRequirements{CPU: 1, MemoryMi: "256Mi"},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/jobs/", bytes.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)

	var env errorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	assert.Equal(t, "validation", env.Code)
	assert.NotEmpty(t, env.TraceID)
}

func TestGetJobNotFoundReturnsEnvelope(t *testing.T) {
	router, _, _ := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/jobs/does-not-exist", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	var env errorEnvelope
	require.NoError(t, json.NewDecoder(w.Body).Decode(&env))
	assert.Equal(t, "not_found", env.Code)
}

func TestListPoolsReturnsSavedPools(t *testing.T) {
	router, store, _ := newTestRouter(t, nil)
	pool := types.ResourcePool{ID: "pool-1", Name: "default", Type: "local", Status: types.PoolActive}
	require.NoError(t, store.ResourcePools().Save(context.Background(), pool))

	req := httptest.NewRequest(http.MethodGet, "/v1/pools/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var pools []types.ResourcePool
	require.NoError(t, json.NewDecoder(w.Body).Decode(&pools))
	require.Len(t, pools, 1)
	assert.Equal(t, "pool-1", pools[0].ID)
}

func TestCancelJobDelegatesToCancelFunc(t *testing.T) {
	var cancelledID string
	router, store, _ := newTestRouter(t, func(ctx context.Context, jobID string) error {
		cancelledID = jobID
		return nil
	})
	job := types.Job{ID: "job-1", Name: "build", Status: types.JobRunning}
	require.NoError(t, store.Jobs().Save(context.Background(), job))

	req := httptest.NewRequest(http.MethodDelete, "/v1/jobs/job-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "job-1", cancelledID)
}

func TestCancelJobWithoutWiringReturnsInternalError(t *testing.T) {
	router, store, _ := newTestRouter(t, nil)
	job := types.Job{ID: "job-1", Name: "build", Status: types.JobRunning}
	require.NoError(t, store.Jobs().Save(context.Background(), job))

	req := httptest.NewRequest(http.MethodDelete, "/v1/jobs/job-1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
