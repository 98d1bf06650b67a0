package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "council.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestInitializeDefaultsOnly(t *testing.T) {
	cfg, err := Initialize(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Checkpoint.Backend)
	assert.Equal(t, 0.70, cfg.Consensus.PriorApprove)
	assert.Equal(t, 0.95, cfg.Consensus.AcceptThreshold)
	assert.Equal(t, 0.30, cfg.Consensus.RejectThreshold)
	assert.NotEmpty(t, cfg.Healing.TestCommand)
}

func TestInitializeMergesUserOverDefaults(t *testing.T) {
	path := writeConfig(t, `
consensus:
  prior_approve: 0.6
checkpoint:
  backend: redis
  redis_addr: localhost:6379
`)

	cfg, err := Initialize(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 0.6, cfg.Consensus.PriorApprove)
	assert.Equal(t, BackendRedis, cfg.Checkpoint.Backend)
	// Untouched sections keep their defaults.
	assert.Equal(t, 0.95, cfg.Consensus.AcceptThreshold)
	assert.NotEmpty(t, cfg.Models.Pro.Model)
}

func TestInitializeExpandsEnv(t *testing.T) {
	t.Setenv("COUNCIL_TEST_MODEL", "env-model")
	path := writeConfig(t, `
models:
  pro:
    model: "{{.COUNCIL_TEST_MODEL}}"
`)

	cfg, err := Initialize(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "env-model", cfg.Models.Pro.Model)
}

func TestInitializeMissingFile(t *testing.T) {
	_, err := Initialize(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestInitializeInvalidYAML(t *testing.T) {
	path := writeConfig(t, "models: [not: a: map")
	_, err := Initialize(context.Background(), path)
	assert.ErrorIs(t, err, ErrInvalidYAML)
}

func TestInitializeValidationFailure(t *testing.T) {
	path := writeConfig(t, `
checkpoint:
  backend: etcd
`)
	_, err := Initialize(context.Background(), path)
	assert.ErrorIs(t, err, ErrValidationFailed)
}
