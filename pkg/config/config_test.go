package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hodei-pipelines/orchestrator/pkg/apperr"
	"github.com/hodei-pipelines/orchestrator/pkg/queue"
	"github.com/hodei-pipelines/orchestrator/pkg/scheduler"
)

func TestLoadFillsDefaultsForUnsetFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  grpcAddr: ":9999"
workers:
  - poolType: local
    workerBinary: hodei-worker
    serverEndpoint: localhost:9999
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Server.GRPCAddr)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, queue.PriorityBased, cfg.Queue.RankingStrategy())
	assert.Equal(t, scheduler.RoundRobin, cfg.Scheduler.Strategy())
}

func TestLoadMissingFileReturnsValidationError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, kind)
}

func TestValidateRejectsMissingWorkers(t *testing.T) {
	cfg := Default()
	cfg.Workers = nil

	err := cfg.Validate()
	require.Error(t, err)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, kind)
}

func TestDefaultConfigIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}
